// internal/pipeline/caller/ratelimit.go
package caller

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces out model calls. One Limiter is shared by every run
// in the process: all runs draw on the same provider quota, and a
// per-run limiter would let two simultaneous runs jointly exceed it.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a limiter enforcing at most one call per delay
// interval. A non-positive delay disables throttling (paid tiers with
// effectively unconstrained quota).
func NewLimiter(delay time.Duration) *Limiter {
	if delay <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next call slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
