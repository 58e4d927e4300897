package cocoro

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/joshp123/gohome-cocoro/internal/core"
)

type cachedSnapshot struct {
	snapshot  Snapshot
	fetchedAt time.Time
	success   bool
	err       error
}

// Monitor polls the configured device and keeps the last snapshot so metric
// scrapes, MQTT publishes and HTTP reads share one upstream fetch per
// interval. A failed poll keeps the previous values and marks them stale.
type Monitor struct {
	client      *Client
	deviceID    string
	minInterval time.Duration

	polls singleflight.Group

	mu     sync.Mutex
	cached *cachedSnapshot
}

// NewMonitor watches the client's configured device. minInterval is how long
// a poll result, successful or not, is served from cache before Current
// fetches again.
func NewMonitor(client *Client, minInterval time.Duration) *Monitor {
	return &Monitor{client: client, deviceID: client.DeviceID(), minInterval: minInterval}
}

// Current returns the cached snapshot, fetching when it is older than the
// poll interval. Concurrent callers share one in-flight fetch.
func (m *Monitor) Current(ctx context.Context) cachedSnapshot {
	if cached, ok := m.fresh(); ok {
		return cached
	}
	v, _, _ := m.polls.Do("current", func() (any, error) {
		if cached, ok := m.fresh(); ok {
			return cached, nil
		}
		return m.poll(ctx), nil
	})
	return v.(cachedSnapshot)
}

// Refresh fetches a new snapshot regardless of cache age. Calls that overlap
// an in-flight refresh get its result.
func (m *Monitor) Refresh(ctx context.Context) cachedSnapshot {
	v, _, _ := m.polls.Do("refresh", func() (any, error) {
		return m.poll(ctx), nil
	})
	return v.(cachedSnapshot)
}

func (m *Monitor) fresh() (cachedSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil || time.Since(m.cached.fetchedAt) >= m.minInterval {
		return cachedSnapshot{}, false
	}
	return *m.cached, true
}

func (m *Monitor) poll(ctx context.Context) cachedSnapshot {
	snapshot, err := m.client.SensorData(ctx, m.deviceID)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		next := cachedSnapshot{fetchedAt: now, err: err}
		if m.cached != nil {
			next.snapshot = m.cached.snapshot
		}
		m.cached = &next
		m.client.logger.Warn("poll failed", "device_id", m.deviceID, "error", err, "transient", IsTransient(err))
		return next
	}
	m.cached = &cachedSnapshot{snapshot: snapshot, fetchedAt: now, success: true}
	return *m.cached
}

// Last returns the cached snapshot without fetching.
func (m *Monitor) Last() (cachedSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return cachedSnapshot{}, false
	}
	return *m.cached, true
}

// RecordMode applies a successful humidity-mode write to the cache.
func (m *Monitor) RecordMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return
	}
	on := mode.Bool()
	m.cached.snapshot.HumidityMode = &on
}

// SetHumidityMode writes the mode and updates the cache on success.
func (m *Monitor) SetHumidityMode(ctx context.Context, mode Mode) error {
	if err := m.client.SetHumidityMode(ctx, mode); err != nil {
		return err
	}
	m.RecordMode(mode)
	return nil
}

// Health summarises the last poll.
func (m *Monitor) Health() (core.HealthStatus, string) {
	last, ok := m.Last()
	if !ok {
		return core.HealthHealthy, "no poll yet"
	}
	if last.success {
		return core.HealthHealthy, ""
	}
	if IsTransient(last.err) {
		return core.HealthDegraded, last.err.Error()
	}
	return core.HealthError, last.err.Error()
}
