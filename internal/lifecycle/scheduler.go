package lifecycle

import (
	"fmt"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler is a thin wrapper around gocron.Scheduler backing `resubmit
// --watch` (watch.go): it owns the underlying cron scheduler's
// lifetime so Watch can register its interval job and shut it down
// cleanly when the target settles.
type Scheduler struct {
	scheduler gocron.Scheduler
}

func newScheduler(maxConcurrent int) (*Scheduler, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	s, err := gocron.NewScheduler(
		gocron.WithLimitConcurrentJobs(uint(maxConcurrent), gocron.LimitModeWait),
	)
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}
	// Start immediately so the watch loop's first round (run directly by
	// Watch, not through gocron) and its subsequent interval job both
	// execute without requiring a separate explicit start call.
	s.Start()
	return &Scheduler{scheduler: s}, nil
}

// Stop shuts down the scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
