package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitError is returned when calls are blocked.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

// state tracks observed limits.
type state struct {
	remaining   map[Window]int
	limits      map[Window]int
	budgetFloor map[Window]int
	buckets     map[Window]*bucket
	hasHeaders  map[Window]bool
	cooldown    time.Time
	lastStatus  int
}

// Guard enforces rate limits for a provider.
type Guard struct {
	decl Declaration
	now  func() time.Time
	mu   sync.Mutex
	// state is mutated under mu
	state state
}

// WrapHTTP wraps an http.Client with rate-limit enforcement.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{
		base:  transport,
		guard: NewGuard(decl),
	}
	return &client
}

// NewGuard builds a guard with full buckets for every declared window.
func NewGuard(decl Declaration) *Guard {
	return newGuardAt(decl, time.Now)
}

func newGuardAt(decl Declaration, now func() time.Time) *Guard {
	st := state{
		remaining:   make(map[Window]int),
		limits:      make(map[Window]int),
		budgetFloor: make(map[Window]int),
		buckets:     make(map[Window]*bucket),
		hasHeaders:  make(map[Window]bool),
	}
	start := now()
	for window, limit := range decl.Limits() {
		st.limits[window] = limit
		st.remaining[window] = limit
		st.buckets[window] = &bucket{
			capacity: limit,
			tokens:   float64(limit),
			last:     start,
		}
	}
	for window, floor := range decl.BudgetFloors() {
		st.budgetFloor[window] = floor
	}
	return &Guard{decl: decl, now: now, state: st}
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall(rt.guard.now())
	if !decision.Allowed {
		if req.Body != nil {
			req.Body.Close()
		}
		blockedTotal.WithLabelValues(rt.guard.decl.ProviderName(), decision.Reason).Inc()
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}

// ShouldCall reports whether a request may go out now, consuming budget
// when it may.
func (g *Guard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.decl.HasLimits() {
		return Decision{Allowed: false, Reason: "disabled"}
	}

	if !g.state.cooldown.IsZero() && now.Before(g.state.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.state.cooldown}
	}

	for window, limit := range g.state.limits {
		if limit <= 0 {
			return Decision{Allowed: false, Reason: "disabled"}
		}
		if g.state.hasHeaders[window] && g.state.remaining[window] <= g.state.budgetFloor[window] {
			return Decision{Allowed: false, Reason: "budget", RetryAt: g.state.cooldown}
		}
		b := g.state.buckets[window]
		if b != nil && !consumeToken(b, windowDuration(window), now) {
			retryAt := b.last.Add(windowDuration(window) / time.Duration(b.capacity))
			return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
		}
		if g.state.hasHeaders[window] {
			g.state.remaining[window]--
		}
	}

	return Decision{Allowed: true}
}

// RecordResponse folds provider headers into the guard state. A 429
// without Retry-After still cools the provider down for a minute.
func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := g.decl.ProviderName()
	g.state.lastStatus = status
	lastStatusGauge.WithLabelValues(provider).Set(float64(status))

	parsed := parseHeaders(headers, g.decl.Headers())
	now := g.now()

	switch {
	case parsed.retryAfter > 0:
		g.state.cooldown = now.Add(time.Duration(parsed.retryAfter) * time.Second)
		retryAfterGauge.WithLabelValues(provider).Set(float64(parsed.retryAfter))
	case status == http.StatusTooManyRequests:
		g.state.cooldown = now.Add(time.Minute)
		retryAfterGauge.WithLabelValues(provider).Set(time.Minute.Seconds())
	}

	updateWindow := func(window Window, remaining int, limit int) {
		if remaining < 0 {
			return
		}
		g.state.remaining[window] = remaining
		if limit > 0 {
			g.state.limits[window] = limit
		}
		g.state.hasHeaders[window] = true
		remainingGauge.WithLabelValues(provider, window.String()).Set(float64(remaining))
	}

	updateWindow(Minute, parsed.remainingMinute, parsed.limitMinute)
	updateWindow(Day, parsed.remainingDay, parsed.limitDay)
}

type parsedHeaders struct {
	limitMinute     int
	remainingMinute int
	limitDay        int
	remainingDay    int
	retryAfter      int
}

func parseHeaders(h http.Header, cfg Headers) parsedHeaders {
	return parsedHeaders{
		limitMinute:     headerInt(h, cfg.LimitMinute),
		remainingMinute: headerInt(h, cfg.RemainingMinute),
		limitDay:        headerInt(h, cfg.LimitDay),
		remainingDay:    headerInt(h, cfg.RemainingDay),
		retryAfter:      headerInt(h, cfg.RetryAfter),
	}
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := strings.TrimSpace(h.Get(key))
	if val == "" {
		return -1
	}
	out, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return out
}

func windowDuration(window Window) time.Duration {
	switch window {
	case Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

func consumeToken(b *bucket, window time.Duration, now time.Time) bool {
	if b.last.IsZero() {
		b.last = now
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		refillRate := float64(b.capacity) / window.Seconds()
		b.tokens = min(float64(b.capacity), b.tokens+elapsed*refillRate)
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}
