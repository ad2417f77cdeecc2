package history

import (
	"context"
	"time"
)

// sleep waits for the specified duration or until context is cancelled.
// Returns true if sleep completed, false if context was cancelled.
func sleep(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff doubles current, capped at max.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// retryDelay picks the wait before the next attempt: the scheduled backoff,
// or the server's suggestion when that is longer. Never above max.
func retryDelay(scheduled, suggested, max time.Duration) time.Duration {
	d := scheduled
	if suggested > d {
		d = suggested
	}
	if d > max {
		return max
	}
	return d
}
