package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Watch re-runs Resubmit against t on a fixed interval until every
// Dataset comes back either with nothing left to resubmit or with an
// error, or maxAttempts rounds pass without reaching that state (0 = no
// ceiling). This is a convenience wrapper around Resubmit; it adds no
// reconciliation semantics of its own. The first round runs immediately,
// before the interval job is registered with the Scheduler.
func (d *Driver) Watch(ctx context.Context, t Target, opts Options, interval time.Duration, maxAttempts int) error {
	sched, err := newScheduler(1)
	if err != nil {
		return fmt.Errorf("lifecycle: start watch scheduler: %w", err)
	}
	defer sched.Stop()

	done := make(chan error, 1)
	var mu sync.Mutex
	attempts := 0

	round := func() {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		results, err := d.Resubmit(ctx, t, opts)
		if err != nil {
			trySend(done, err)
			return
		}

		settled := true
		for _, r := range results {
			if r.Err == nil && !r.NoOp {
				settled = false
			}
		}
		if settled {
			trySend(done, nil)
			return
		}
		if maxAttempts > 0 && n >= maxAttempts {
			trySend(done, fmt.Errorf("lifecycle: watch reached %d attempts without settling", maxAttempts))
		}
	}

	round()
	select {
	case err := <-done:
		return err
	default:
	}

	if _, err := sched.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(round),
		gocron.WithName("resubmit-watch"),
	); err != nil {
		return fmt.Errorf("lifecycle: schedule watch: %w", err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func trySend(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
