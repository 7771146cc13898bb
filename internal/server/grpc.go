package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"onego-security/backend/internal/health"
)

// NewGRPCServer returns a gRPC server that serves only grpc.health.v1 for orchestrator probes.
// Calls are traced through the global OpenTelemetry providers.
func NewGRPCServer(hs *health.GRPCServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, hs)
	return s
}
