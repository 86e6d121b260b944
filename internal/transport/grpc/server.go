package grpc

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type ServerConfig struct {
	RequestTimeout time.Duration
}

// NewServer builds a gRPC server with AppointmentsService and the standard
// health service registered. The returned health server reports SERVING.
func NewServer(cfg ServerConfig, svc appointmentsService, log *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDInterceptor(),
			DefaultRequestTimeoutInterceptor(cfg.RequestTimeout),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)

	RegisterAppointmentsServiceServer(s, NewAppointmentsServer(svc, log))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	return s, hs
}
