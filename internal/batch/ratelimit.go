package batch

import (
	"context"

	"golang.org/x/time/rate"
)

// limited wraps an Adapter so that Submit calls are throttled, keeping
// a flood of chunk submissions from hammering the scheduler's head
// node (spec.md §4.2 "submission rate is limited").
type limited struct {
	Adapter
	limiter *rate.Limiter
}

// Limited returns an Adapter that throttles Submit to at most r
// submissions per second, with burst allowed immediately.
func Limited(a Adapter, r rate.Limit, burst int) Adapter {
	return &limited{Adapter: a, limiter: rate.NewLimiter(r, burst)}
}

func (l *limited) Submit(ctx context.Context, script, joblistPath string, opts Options) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.Adapter.Submit(ctx, script, joblistPath, opts)
}
