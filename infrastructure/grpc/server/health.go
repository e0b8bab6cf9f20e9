// Package server exposes the gRPC health service used by orchestration probes.
package server

import (
	"log/slog"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewHealthServer builds a gRPC server carrying only the standard health
// service. Statuses are driven by the returned health.Server.
func NewHealthServer(log *slog.Logger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(log),
		))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	return s, h
}
