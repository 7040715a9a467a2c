package main

import (
	"fmt"
	"os"

	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configPath string
	pgDSN      string
	redisAddr  string
	fastStore  string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pulsar",
		Short:         "Pulsar - key-value cache over PostgreSQL with a Redis fast path",
		Long:          "A key-value cache service with durable storage, per-entry TTL, lazy expiry and a periodic sweep",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&pgDSN, "pg-dsn", "", "PostgreSQL DSN (empty in config selects the memory store)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address")
	rootCmd.PersistentFlags().StringVar(&fastStore, "fast-store", "", "Fast store backend: redis, memory, none")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level")

	rootCmd.AddCommand(
		serveCmd(),
		getCmd(),
		putCmd(),
		deleteCmd(),
		existsCmd(),
		sweepCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration: defaults, then the config file, then
// .env and PULSAR_* variables, then command-line flags.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)

	if pgDSN != "" {
		cfg.Postgres.DSN = pgDSN
	}
	if redisAddr != "" {
		cfg.FastStore.Redis.Addr = redisAddr
	}
	if fastStore != "" {
		cfg.FastStore.Backend = fastStore
	}
	if logLevel != "" {
		cfg.Daemon.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)
	return cfg, nil
}
