package cocoro

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMonitorSharesConcurrentPolls(t *testing.T) {
	portal, server := newFakePortal(t)
	client := newTestClient(t, testConfig(server.URL))
	ctx := context.Background()
	if err := client.Login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}

	gate := make(chan struct{})
	portal.set(func(p *fakePortal) { p.propertyGate = gate })
	monitor := NewMonitor(client, time.Minute)

	results := make([]cachedSnapshot, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = monitor.Current(ctx)
		}(i)
	}

	deadline := time.Now().Add(5 * time.Second)
	for portal.waitingCount() == 0 {
		if time.Now().After(deadline) {
			close(gate)
			t.Fatalf("poll never reached the portal")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := portal.count(pathProperties); got != 1 {
		t.Fatalf("expected one upstream poll for concurrent readers, got %d", got)
	}
	for i, r := range results {
		if !r.success || r.snapshot.Temperature == nil || *r.snapshot.Temperature != 25 {
			t.Fatalf("reader %d got unexpected snapshot: %+v", i, r)
		}
	}
}

func TestMonitorCachesFailedPoll(t *testing.T) {
	portal, server := newFakePortal(t)
	client := newTestClient(t, testConfig(server.URL))
	portal.set(func(p *fakePortal) { p.propertyBody = `{}` })
	monitor := NewMonitor(client, time.Minute)

	first := monitor.Current(context.Background())
	second := monitor.Current(context.Background())
	if first.success || second.err == nil {
		t.Fatalf("expected cached failure, got %+v", second)
	}
	if got := portal.count(pathProperties); got != 1 {
		t.Fatalf("failed poll should be cached for the interval, got %d polls", got)
	}
}
