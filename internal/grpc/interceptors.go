package grpc

import (
	"context"
	"time"

	"github.com/oriys/pulsar/internal/logging"
	"google.golang.org/grpc"
)

// loggingInterceptor logs all gRPC requests
func loggingInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	duration := time.Since(start)
	if err != nil {
		logging.Op().Error("gRPC request failed",
			"method", info.FullMethod,
			"duration", duration,
			"error", err,
		)
	} else {
		logging.Op().Debug("gRPC request completed",
			"method", info.FullMethod,
			"duration", duration,
		)
	}

	return resp, err
}
