// Package grpc serves the standard gRPC health service for Pulsar. The
// serving status follows the durable store: SERVING while it answers a
// ping, NOT_SERVING otherwise.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oriys/pulsar/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside "".
const ServiceName = "pulsar.Cache"

// Pinger reports whether the durable store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds configuration for the gRPC server
type Config struct {
	Address       string
	Durable       Pinger
	CheckInterval time.Duration // default 5s
}

// Server is the gRPC health server.
type Server struct {
	cfg        Config
	grpcServer *grpc.Server
	health     *health.Server

	stopOnce sync.Once
	stop     chan struct{}
}

// NewServer creates the gRPC server and registers the health service.
func NewServer(cfg Config) *Server {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggingInterceptor,
		),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	return &Server{
		cfg:        cfg,
		grpcServer: grpcServer,
		health:     healthServer,
		stop:       make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.Serve(lis)
	logging.Op().Info("gRPC server started", "addr", lis.Addr().String())
	return nil
}

// Serve serves on lis in the background and starts the health checker.
func (s *Server) Serve(lis net.Listener) {
	s.check()
	go s.watch()
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			logging.Op().Error("gRPC server error", "error", err)
		}
	}()
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	})
}

func (s *Server) watch() {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.check()
		}
	}
}

func (s *Server) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.cfg.Durable.Ping(ctx); err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		logging.Op().Warn("durable store ping failed", "error", err)
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
