package orchestrator

import (
	"context"
	"time"
)

// Backoff is a bounded exponential retry policy.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: 2 * time.Second, Max: time.Minute, MaxAttempts: 5}
}

// Delay returns the sleep before retry attempt (0-indexed), preferring the
// source's own hint when it exceeds the computed delay.
func (b Backoff) Delay(attempt int, hint time.Duration) time.Duration {
	d := b.Initial << attempt
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	if hint > d {
		d = hint
	}
	return d
}

// Sleep waits out the delay or the context, whichever ends first.
func (b Backoff) Sleep(ctx context.Context, attempt int, hint time.Duration) error {
	timer := time.NewTimer(b.Delay(attempt, hint))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
