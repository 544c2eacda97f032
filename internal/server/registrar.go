package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Registrar is a common interface for all gRPC service registrars
type Registrar interface {
	Register(s *grpc.Server)
}

// HealthRegistrar exposes grpc.health.v1. The overall status ("") starts
// NOT_SERVING until the first probe completes.
type HealthRegistrar struct {
	srv *health.Server
}

func NewHealthRegistrar() *HealthRegistrar {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthRegistrar{srv: srv}
}

func (h *HealthRegistrar) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// SetServing records the status of service; "" is the overall status.
func (h *HealthRegistrar) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus(service, status)
}

// Shutdown flips every service to NOT_SERVING.
func (h *HealthRegistrar) Shutdown() { h.srv.Shutdown() }
