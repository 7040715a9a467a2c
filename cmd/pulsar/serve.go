package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/oriys/pulsar/internal/api"
	"github.com/oriys/pulsar/internal/grpc"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/internal/observability"
	"github.com/oriys/pulsar/internal/scheduler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var (
		httpAddr      string
		grpcAddr      string
		sweepInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cache daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Daemon.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("grpc") {
				cfg.Daemon.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("sweep-interval") {
				cfg.Sweeper.Interval = sweepInterval
				cfg.Sweeper.Schedule = ""
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := observability.Init(ctx, cfg.Observability); err != nil {
				return err
			}
			metrics.InitPrometheus("pulsar", nil)

			comps, err := buildComponents(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer comps.Close()

			accessLog := logging.Default()
			if cfg.Daemon.AccessLog != "" {
				if err := accessLog.SetOutput(cfg.Daemon.AccessLog); err != nil {
					return err
				}
				defer accessLog.Close()
			}

			sweeper := scheduler.New(comps.engine, cfg.Sweeper)
			if err := sweeper.Start(); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			if comps.invalidator != nil {
				g.Go(func() error {
					comps.invalidator.Start(gctx)
					return nil
				})
			}

			srvCfg := api.ServerConfig{
				Engine:    comps.engine,
				Store:     comps.store,
				Local:     comps.local,
				Sweeper:   sweeper,
				AccessLog: accessLog,
			}
			if comps.fast != nil {
				srvCfg.Fast = comps.fast
				srvCfg.Breaker = comps.fast.Breaker()
			}

			var httpServer *http.Server
			if cfg.Daemon.HTTPAddr != "" {
				httpServer = api.StartHTTPServer(cfg.Daemon.HTTPAddr, srvCfg)
			}

			var grpcServer *grpc.Server
			if cfg.Daemon.GRPCAddr != "" {
				grpcServer = grpc.NewServer(grpc.Config{Address: cfg.Daemon.GRPCAddr, Durable: comps.store})
				if err := grpcServer.Start(); err != nil {
					return err
				}
			}

			logging.Op().Info("pulsar started",
				"durable_store", comps.store.Driver(),
				"fast_store", cfg.FastStore.Backend,
				"sweep", cfg.Sweeper.Spec(),
			)

			<-ctx.Done()
			logging.Op().Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if httpServer != nil {
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logging.Op().Warn("HTTP shutdown", "error", err)
				}
			}
			if grpcServer != nil {
				grpcServer.Stop()
			}
			if err := sweeper.Stop(shutdownCtx); err != nil {
				logging.Op().Warn("sweeper did not stop in time", "error", err)
			}
			if err := g.Wait(); err != nil {
				logging.Op().Warn("background task failed", "error", err)
			}
			return observability.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", ":8080", "HTTP address (empty disables)")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC health address (empty disables)")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", scheduler.DefaultInterval, "Expiration sweep interval")

	return cmd
}
