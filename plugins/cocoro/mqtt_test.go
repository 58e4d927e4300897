package cocoro

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStatePayload(t *testing.T) {
	temp, humidity := 21, 40
	water, mode := true, false
	fetched := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	data, err := statePayload(cachedSnapshot{
		snapshot: Snapshot{
			DeviceID:     "dev-1",
			Temperature:  &temp,
			Humidity:     &humidity,
			WaterTank:    &water,
			HumidityMode: &mode,
			FetchedAt:    fetched,
		},
		success: true,
	})
	if err != nil {
		t.Fatalf("state payload: %v", err)
	}

	var got map[string]any
	decodeJSON(t, data, &got)
	if got["temperature"] != float64(21) || got["humidity"] != float64(40) {
		t.Fatalf("unexpected readings: %v", got)
	}
	if got["water_tank"] != true || got["humidity_mode"] != "off" || got["stale"] != false {
		t.Fatalf("unexpected flags: %v", got)
	}
	if got["updated_at"] != float64(fetched.Unix()) {
		t.Fatalf("unexpected updated_at: %v", got["updated_at"])
	}
}

func TestStatePayloadUnknownFields(t *testing.T) {
	data, err := statePayload(cachedSnapshot{err: errors.New("timeout")})
	if err != nil {
		t.Fatalf("state payload: %v", err)
	}
	var got map[string]any
	decodeJSON(t, data, &got)
	if got["temperature"] != nil || got["humidity_mode"] != nil {
		t.Fatalf("unknown readings should be null: %v", got)
	}
	if got["stale"] != true {
		t.Fatalf("failed poll should be stale: %v", got)
	}
}

func TestHandleModeCommand(t *testing.T) {
	portal, server := newFakePortal(t)
	client := newTestClient(t, testConfig(server.URL))
	monitor := NewMonitor(client, defaultPollInterval)
	ctx := context.Background()

	var argErr *InvalidArgumentError
	if err := handleModeCommand(ctx, monitor, []byte("boost")); !errors.As(err, &argErr) {
		t.Fatalf("expected InvalidArgumentError, got %v", err)
	}
	if portal.total() != 0 {
		t.Fatalf("invalid command reached the portal")
	}

	if err := handleModeCommand(ctx, monitor, []byte("ON")); err != nil {
		t.Fatalf("handle command: %v", err)
	}
	if len(portal.lastControlBody()) == 0 {
		t.Fatalf("expected control request")
	}
}

func TestMQTTTopics(t *testing.T) {
	topics := newMQTTTopics("gohome/cocoro/", "dev-1")
	if topics.state != "gohome/cocoro/dev-1/state" ||
		topics.availability != "gohome/cocoro/dev-1/availability" ||
		topics.command != "gohome/cocoro/dev-1/humidity_mode/set" {
		t.Fatalf("unexpected topics: %+v", topics)
	}
}
