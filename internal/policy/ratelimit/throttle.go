package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/buzzcrawl/internal/metrics"
)

// ThrottleConfig holds the per-host politeness settings used by fetchers.
type ThrottleConfig struct {
	RPS   float64
	Burst int
}

// Throttle spaces outbound requests per host with a token bucket.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewThrottle creates a Throttle. A non-positive RPS disables throttling.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	metrics.Init()
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the host of rawURL, respecting ctx.
func (t *Throttle) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeHost(rawURL)
	t.mu.Lock()
	limiter, ok := t.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(t.rps, t.burst)
		t.limiters[host] = limiter
	}
	t.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait for %s: %w", host, err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveThrottleDelay(host, d)
	}
	return nil
}
