package api

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthService is the service name whose status tracks the broker session.
const HealthService = "finvasia.Session"

// newGRPCServer builds a gRPC server exposing only health and reflection.
// Both the overall status and HealthService start NOT_SERVING.
func newGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	setServing(hs, false)
	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv, hs
}

func setServing(hs *health.Server, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(HealthService, status)
}
