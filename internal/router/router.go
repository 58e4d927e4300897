package router

import (
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/gohome-cocoro/internal/core"
)

// RegisterPlugins registers the gRPC health service and each plugin's HTTP
// handlers. The returned health server is kept in sync by the caller.
func RegisterPlugins(server *grpc.Server, mux *http.ServeMux, plugins []core.Plugin) *health.Server {
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	core.SyncHealth(healthServer, plugins)

	for _, p := range plugins {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(mux)
		}
	}
	return healthServer
}
