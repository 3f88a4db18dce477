package common

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles calls per endpoint group. Venues like OKX publish
// limits as "N requests per window" per endpoint rather than a shared weight.
type RateLimiter struct {
	mu       sync.Mutex
	groups   map[string]*rate.Limiter
	fallback rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter where groups without an explicit rule
// allow n requests per window.
func NewRateLimiter(n int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		groups:   make(map[string]*rate.Limiter),
		fallback: rate.Every(window / time.Duration(max(n, 1))),
		burst:    max(n, 1),
	}
}

// SetRule installs an n-per-window rule for group.
func (rl *RateLimiter) SetRule(group string, n int, window time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.groups[group] = rate.NewLimiter(rate.Every(window/time.Duration(max(n, 1))), max(n, 1))
}

// Wait blocks until group may issue one request or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, group string) error {
	return rl.limiter(group).Wait(ctx)
}

func (rl *RateLimiter) limiter(group string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.groups[group]
	if !ok {
		l = rate.NewLimiter(rl.fallback, rl.burst)
		rl.groups[group] = l
	}
	return l
}
