package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// withComponents loads configuration, builds the components without the
// read-through layer and runs fn.
func withComponents(fn func(ctx context.Context, c *components) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := buildComponents(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func getCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the live value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return withComponents(func(ctx context.Context, c *components) error {
				value, found, err := c.engine.Get(ctx, key)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("key %q not found", key)
				}
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]string{"key": key, "value": value})
				}
				fmt.Println(value)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func putCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a value, permanent unless --ttl is given",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			withTTL := cmd.Flags().Changed("ttl")
			return withComponents(func(ctx context.Context, c *components) error {
				if withTTL {
					if err := c.engine.PutWithTTL(ctx, key, value, ttl); err != nil {
						return err
					}
					fmt.Printf("Stored %s (expires in %s)\n", key, ttl)
					return nil
				}
				if err := c.engine.Put(ctx, key, value); err != nil {
					return err
				}
				fmt.Printf("Stored %s (permanent)\n", key)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Time to live, e.g. 30s or 1h")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return withComponents(func(ctx context.Context, c *components) error {
				if err := c.engine.Delete(ctx, key); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", key)
				return nil
			})
		},
	}
}

func existsCmd() *cobra.Command {
	var includeExpired bool

	cmd := &cobra.Command{
		Use:   "exists <key>",
		Short: "Report whether a key holds a live entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return withComponents(func(ctx context.Context, c *components) error {
				var (
					exists bool
					err    error
				)
				if includeExpired {
					exists, err = c.store.ExistsByKey(ctx, key)
				} else {
					exists, err = c.engine.Exists(ctx, key)
				}
				if err != nil {
					return err
				}
				fmt.Println(exists)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&includeExpired, "include-expired", false, "Count expired entries that were not swept yet")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove every expired entry now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(func(ctx context.Context, c *components) error {
				n, err := c.engine.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d expired entries\n", n)
				return nil
			})
		},
	}
}
