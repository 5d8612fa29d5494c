// Package notify throttles and dispatches operator notifications. The
// throttle is independent of the sync protocol's own flow control.
package notify

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultQuota is the number of notifications allowed per tenant per window.
	DefaultQuota = 10
	// DefaultWindow is the rolling window the quota applies to.
	DefaultWindow = 60 * time.Second
)

// Throttle enforces a per-tenant notification quota over a rolling window.
// Construct one at process start and inject it; it carries no global state.
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	quota   int
	window  time.Duration
}

// NewThrottle builds a throttle allowing quota notifications per window for
// each tenant. Non-positive arguments fall back to the defaults.
func NewThrottle(quota int, window time.Duration) *Throttle {
	if quota <= 0 {
		quota = DefaultQuota
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Throttle{
		buckets: make(map[string]*rate.Limiter),
		quota:   quota,
		window:  window,
	}
}

// Allow reports whether the tenant may send one more notification now.
func (t *Throttle) Allow(tenantID string) bool {
	return t.limiterFor(tenantID).Allow()
}

func (t *Throttle) limiterFor(tenantID string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.buckets[tenantID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(t.window/time.Duration(t.quota)), t.quota)
		t.buckets[tenantID] = limiter
	}
	return limiter
}
