package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/joshp123/gohome-cocoro/internal/config"
	"github.com/joshp123/gohome-cocoro/internal/core"
	"github.com/joshp123/gohome-cocoro/internal/plugins"
	"github.com/joshp123/gohome-cocoro/internal/rate"
	"github.com/joshp123/gohome-cocoro/internal/router"
	"github.com/joshp123/gohome-cocoro/internal/server"
	"github.com/joshp123/gohome-cocoro/internal/sessionstore"
)

const healthSyncInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", envOrDefault("GOHOME_CONFIG", config.DefaultPath), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	compiled := plugins.Compiled(cfg, logger)
	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		fatal(logger, "plugin config", err)
	}
	active := core.FilterPlugins(compiled, enabled, false)
	if err := core.ValidatePlugins(active); err != nil {
		fatal(logger, "plugin validation", err)
	}
	if len(active) == 0 {
		logger.Warn("no plugins configured")
	}

	if err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		logger.Warn("write dashboards", "dir", cfg.Core.DashboardDir, "error", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr)
	if err != nil {
		fatal(logger, "grpc listen", err)
	}

	httpMux := http.NewServeMux()
	healthServer := router.RegisterPlugins(grpcServer.Server, httpMux, active)

	shared := append(rate.MetricsCollectors(), sessionstore.MetricsCollectors()...)
	shared = append(shared, collectors.NewGoCollector(), buildInfo())
	metricsRegistry := core.MetricsRegistry(active, shared...)

	registry := core.NewRegistry(active)
	httpMux.HandleFunc("GET /health", server.HealthHandler)
	httpMux.Handle("GET /ready", server.ReadyHandler(registry))
	httpMux.Handle("GET /metrics", server.MetricsHandler(metricsRegistry))
	httpMux.Handle("GET /dashboards/", server.DashboardsHandler(core.DashboardsMap(active)))
	server.RegisterRegistryHandlers(httpMux, registry)

	for _, p := range active {
		starter, ok := p.(core.Starter)
		if !ok {
			continue
		}
		if err := starter.Start(ctx); err != nil {
			logger.Error("plugin start failed", "plugin", p.ID(), "error", err)
			continue
		}
		defer starter.Stop()
	}

	go core.WatchHealth(ctx, healthServer, active, healthSyncInterval)

	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, httpMux)
	errCh := make(chan error, 2)
	go func() { errCh <- httpServer.ListenAndServe() }()
	go func() { errCh <- grpcServer.Serve() }()

	logger.Info("gohome started", "http_addr", cfg.Core.HTTPAddr, "grpc_addr", cfg.Core.GRPCAddr, "plugins", len(active))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	grpcServer.Stop()
}

func buildInfo() prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gohome_build_info",
		Help: "Build information",
	}, func() float64 { return 1 })
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fatal(logger *slog.Logger, action string, err error) {
	logger.Error(action, "error", err)
	os.Exit(1)
}
