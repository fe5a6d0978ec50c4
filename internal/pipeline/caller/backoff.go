// internal/pipeline/caller/backoff.go
package caller

import (
	"context"
	"math/rand"
	"time"
)

// BackoffPolicy is the single retry policy for transient provider
// failures: exponential delay with jitter, capped at MaxDelay, for up
// to MaxAttempts total attempts.
type BackoffPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64

	// Sleep is injectable so the policy can be tested against a fake
	// clock. Nil means real time.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff is the production policy.
var DefaultBackoff = BackoffPolicy{
	MaxAttempts:    3,
	BaseDelay:      1 * time.Second,
	MaxDelay:       30 * time.Second,
	JitterFraction: 0.2,
}

// DelayFor computes the backoff delay before retry attempt n
// (attempt 1 is the first retry).
func (p BackoffPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay * time.Duration(1<<(attempt-1))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.JitterFraction > 0 {
		jitter := time.Duration(float64(delay) * p.JitterFraction * (2*rand.Float64() - 1))
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Wait sleeps the backoff delay for the given retry attempt,
// returning early when ctx is done.
func (p BackoffPolicy) Wait(ctx context.Context, attempt int) error {
	delay := p.DelayFor(attempt)

	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
