package cocoro

import (
	"context"
	"testing"

	"github.com/joshp123/gohome-cocoro/internal/core"
)

func TestPluginHealthKeepsSetupDegradation(t *testing.T) {
	portal, server := newFakePortal(t)
	client := newTestClient(t, testConfig(server.URL))
	p := &Plugin{
		client:        client,
		monitor:       NewMonitor(client, defaultPollInterval),
		health:        core.HealthDegraded,
		healthMessage: "mqtt password file missing",
	}

	p.monitor.Refresh(context.Background())
	if p.Health() != core.HealthDegraded || p.HealthMessage() != "mqtt password file missing" {
		t.Fatalf("healthy poll masked setup state: %s %q", p.Health(), p.HealthMessage())
	}

	portal.set(func(p *fakePortal) { p.propertyBody = `{}` })
	p.monitor.Refresh(context.Background())
	if p.Health() != core.HealthError {
		t.Fatalf("expected failed poll to escalate to ERROR, got %s", p.Health())
	}
	if p.HealthMessage() == "mqtt password file missing" {
		t.Fatalf("expected poll error message, got %q", p.HealthMessage())
	}
}

func TestPluginHealthFollowsPollWhenSetupHealthy(t *testing.T) {
	_, server := newFakePortal(t)
	client := newTestClient(t, testConfig(server.URL))
	p := &Plugin{client: client, monitor: NewMonitor(client, defaultPollInterval), health: core.HealthHealthy}

	if p.Health() != core.HealthHealthy || p.HealthMessage() != "no poll yet" {
		t.Fatalf("unexpected health before poll: %s %q", p.Health(), p.HealthMessage())
	}
}
