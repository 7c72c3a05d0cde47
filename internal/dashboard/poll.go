package dashboard

import (
	"context"
	"time"

	"github.com/aidcare/copilot/internal/reliability"
)

// Poll calls fn immediately and then every interval until ctx ends.
// Consecutive failures stretch the wait up to maxInterval; one success resets it.
func Poll(ctx context.Context, interval, maxInterval time.Duration, fn func(context.Context) error) error {
	if interval <= 0 {
		interval = 12 * time.Second
	}
	if maxInterval < interval {
		maxInterval = interval
	}
	failures := 0
	for {
		if err := fn(ctx); err != nil {
			failures++
		} else {
			failures = 0
		}
		wait := interval
		if failures > 0 {
			wait = reliability.ExponentialBackoff(failures, interval, maxInterval)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
