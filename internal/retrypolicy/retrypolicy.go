// Package retrypolicy implements the bounded fixed-delay retry a slave uses
// while waiting for a chunk referenced by a replicated reservation to
// materialize locally. It is a deliberately small relative of the
// ExponentialBackoff/LinearBackoff strategies in
// jontk-slurm-client/pkg/retry/backoff.go: Castor's slave wait has no need
// for exponential growth or jitter, just a fixed poll interval bounded by a
// wall-clock deadline.
package retrypolicy

import (
	"context"
	"time"
)

// BoundedWait retries fn every delay until it returns a nil error, until ctx
// is done, or until timeout has elapsed since BoundedWait was called —
// whichever comes first. When timeout elapses it returns the last error fn
// produced; when ctx is done first it returns ctx.Err().
//
// fn is invoked at least once, immediately, before any sleep.
func BoundedWait(ctx context.Context, timeout, delay time.Duration, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(timeout)

	lastErr := fn(ctx)
	if lastErr == nil {
		return nil
	}

	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return lastErr
			}
			lastErr = fn(ctx)
			if lastErr == nil {
				return nil
			}
		}
	}
}
