package lifecycle

import (
	"context"
	"time"
)

// retryOnce runs fn, and if it fails, waits backoff and runs it exactly
// one more time — the "retry once with backoff, else surface" policy.
// Every error from fn is treated as retryable; callers wrap storage and
// batch-system calls with it.
func retryOnce(ctx context.Context, backoff time.Duration, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
	}
	return fn()
}
