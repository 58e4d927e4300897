package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joshp123/gohome-cocoro/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

type fakePlugin struct{}

func (fakePlugin) ID() string { return "demo" }

func (fakePlugin) Manifest() core.Manifest {
	return core.Manifest{PluginID: "demo", DisplayName: "Demo", Version: "0.1.0"}
}

func (fakePlugin) AgentsMD() string { return "" }

func (fakePlugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "overview", JSON: []byte(`{"title":"demo"}`)}}
}

func (fakePlugin) Collectors() []prometheus.Collector { return nil }

func (fakePlugin) Health() core.HealthStatus { return core.HealthDegraded }

func (fakePlugin) HealthMessage() string { return "stale" }

func TestRegistryHandlers(t *testing.T) {
	mux := http.NewServeMux()
	RegisterRegistryHandlers(mux, core.NewRegistry([]core.Plugin{fakePlugin{}}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plugins", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		Plugins []core.PluginSummary `json:"plugins"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Plugins) != 1 || list.Plugins[0].Status != "DEGRADED" {
		t.Fatalf("unexpected list: %+v", list.Plugins)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plugins/demo", nil))
	var desc core.PluginDescriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &desc); err != nil {
		t.Fatalf("decode descriptor: %v", err)
	}
	if desc.HealthMessage != "stale" || len(desc.Dashboards) != 1 {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plugins/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDashboardsHandler(t *testing.T) {
	handler := DashboardsHandler(core.DashboardsMap([]core.Plugin{fakePlugin{}}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboards/demo/overview.json", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"title":"demo"}` {
		t.Fatalf("unexpected dashboard response: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboards/demo/missing.json", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

type brokenPlugin struct{ fakePlugin }

func (brokenPlugin) ID() string { return "broken" }

func (brokenPlugin) Manifest() core.Manifest {
	return core.Manifest{PluginID: "broken", DisplayName: "Broken", Version: "0.1.0"}
}

func (brokenPlugin) Health() core.HealthStatus { return core.HealthError }

func TestReadyHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadyHandler(core.NewRegistry([]core.Plugin{fakePlugin{}})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded plugins are still ready, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	ReadyHandler(core.NewRegistry([]core.Plugin{fakePlugin{}, brokenPlugin{}})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
