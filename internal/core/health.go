package core

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the gRPC health service name for a plugin.
func HealthServiceName(pluginID string) string {
	return "gohome.plugins." + pluginID
}

// SyncHealth publishes each plugin's health on the gRPC health server. The
// overall status ("") is SERVING unless a plugin reports ERROR.
func SyncHealth(server *health.Server, plugins []Plugin) {
	overall := healthpb.HealthCheckResponse_SERVING
	for _, p := range plugins {
		status := servingStatus(p.Health())
		if status != healthpb.HealthCheckResponse_SERVING {
			overall = status
		}
		server.SetServingStatus(HealthServiceName(p.ID()), status)
	}
	server.SetServingStatus("", overall)
}

// WatchHealth re-syncs plugin health every interval until ctx ends.
func WatchHealth(ctx context.Context, server *health.Server, plugins []Plugin, interval time.Duration) {
	SyncHealth(server, plugins)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			SyncHealth(server, plugins)
		}
	}
}

func servingStatus(status HealthStatus) healthpb.HealthCheckResponse_ServingStatus {
	if status == HealthError {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
