package cocoro

import (
	"context"
	_ "embed"
	"io"
	"log/slog"
	"net/http"

	"github.com/joshp123/gohome-cocoro/internal/config"
	"github.com/joshp123/gohome-cocoro/internal/core"
	"github.com/joshp123/gohome-cocoro/internal/sessionstore"
	"github.com/prometheus/client_golang/prometheus"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

// Plugin implements the GoHome plugin contract.
type Plugin struct {
	client        *Client
	monitor       *Monitor
	store         sessionstore.Store
	mqttCfg       *MQTTConfig
	bridge        *MQTTBridge
	logger        *slog.Logger
	health        core.HealthStatus
	healthMessage string
}

// NewPlugin constructs a COCORO AIR plugin from config. The bool is false
// when the plugin is not configured at all.
func NewPlugin(cfg *config.Config, logger *slog.Logger) (*Plugin, bool) {
	if cfg == nil || cfg.Cocoro == nil {
		return nil, false
	}
	if logger == nil {
		logger = slog.Default()
	}

	runtimeCfg, err := ConfigFromSettings(cfg.Cocoro)
	if err != nil {
		return &Plugin{health: core.HealthError, healthMessage: err.Error(), logger: logger}, true
	}
	runtimeCfg.Logger = logger

	store, err := sessionstore.Open(cfg.Session)
	if err != nil {
		logger.Warn("session store unavailable, sessions will not persist", "error", err)
	} else {
		runtimeCfg.Store = store
	}

	client, err := NewClient(runtimeCfg)
	if err != nil {
		closeStore(store)
		return &Plugin{health: core.HealthError, healthMessage: err.Error(), logger: logger}, true
	}

	p := &Plugin{
		client:  client,
		monitor: NewMonitor(client, runtimeCfg.PollInterval),
		store:   store,
		logger:  logger,
		health:  core.HealthHealthy,
	}
	if cfg.MQTT != nil && cfg.MQTT.Broker != "" {
		password, err := config.ReadSecret(cfg.MQTT.Password, cfg.MQTT.PasswordFile)
		if err != nil {
			p.health = core.HealthDegraded
			p.healthMessage = err.Error()
			logger.Warn("mqtt disabled", "error", err)
			return p, true
		}
		p.mqttCfg = &MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Interval:    runtimeCfg.PollInterval,
		}
	}
	return p, true
}

// Client exposes the underlying portal client.
func (p *Plugin) Client() *Client {
	return p.client
}

func (p *Plugin) ID() string {
	return "cocoro"
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "cocoro",
		DisplayName: "COCORO AIR",
		Version:     "0.1.0",
		Services: []string{
			"GET /api/cocoro/status",
			"GET /api/cocoro/devices",
			"GET /api/cocoro/humidity-mode",
			"PUT /api/cocoro/humidity-mode",
		},
	}
}

func (p *Plugin) AgentsMD() string {
	return agentsMD
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "cocoro-overview", JSON: dashboardJSON}}
}

func (p *Plugin) RegisterHTTP(mux *http.ServeMux) {
	if p.client == nil {
		return
	}
	RegisterHTTPService(mux, p.client, p.monitor)
}

func (p *Plugin) Collectors() []prometheus.Collector {
	if p.monitor == nil {
		return nil
	}
	return append(SharedCollectors(), NewMetricsCollector(p.monitor))
}

// Start logs in once and starts the MQTT bridge when configured. A failed
// login is not fatal: the next poll retries through the normal backoff.
func (p *Plugin) Start(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	if p.client.Session() == nil {
		if err := p.client.Login(ctx); err != nil {
			p.logger.Warn("initial login failed", "error", err)
		}
	}
	if p.mqttCfg == nil {
		return nil
	}
	bridge, err := StartMQTTBridge(ctx, *p.mqttCfg, p.monitor, p.logger)
	if err != nil {
		return err
	}
	p.bridge = bridge
	return nil
}

func (p *Plugin) Stop() {
	if p.bridge != nil {
		p.bridge.Stop()
	}
	closeStore(p.store)
}

func (p *Plugin) Health() core.HealthStatus {
	status, _ := p.currentHealth()
	return status
}

func (p *Plugin) HealthMessage() string {
	_, msg := p.currentHealth()
	return msg
}

// currentHealth reports the worse of the setup state and the last poll.
func (p *Plugin) currentHealth() (core.HealthStatus, string) {
	if p.monitor == nil {
		return p.health, p.healthMessage
	}
	status, msg := p.monitor.Health()
	if p.health == core.HealthHealthy || healthRank(status) > healthRank(p.health) {
		return status, msg
	}
	return p.health, p.healthMessage
}

func healthRank(status core.HealthStatus) int {
	switch status {
	case core.HealthHealthy:
		return 0
	case core.HealthDegraded:
		return 1
	default:
		return 2
	}
}

func closeStore(store sessionstore.Store) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}
