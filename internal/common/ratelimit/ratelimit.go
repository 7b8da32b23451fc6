// Package ratelimit provides a thin wrapper around golang.org/x/time/rate
// for pacing calls against throttled remote services. A rate of zero (or
// negative) disables limiting entirely, which keeps call sites free of
// conditionals.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces operations at a fixed number of requests per second with a
// burst of one. A disabled limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
	rps     float64
	enabled bool
}

// New creates a Limiter allowing rps requests per second.
// A rps of 0 or less returns a disabled limiter that never blocks.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		rps:     rps,
		enabled: true,
	}
}

// Enabled reports whether the limiter actually limits.
func (l *Limiter) Enabled() bool {
	return l.enabled
}

// RPS returns the configured requests-per-second rate (0 when disabled).
func (l *Limiter) RPS() float64 {
	return l.rps
}

// Wait blocks until the next operation is permitted or the context is done.
// Disabled limiters return immediately.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether an operation may proceed right now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
