package jobs

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler fires functions on cron schedules evaluated in a fixed location.
type Scheduler struct {
	c  *cron.Cron
	lg *zap.Logger
}

// NewScheduler creates a Scheduler. Overlapping firings of the same entry
// are skipped while the previous one still runs.
func NewScheduler(lg *zap.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		lg: lg,
	}
}

// Add registers fn under a standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, fn func()) error {
	if _, err := s.c.AddFunc(spec, fn); err != nil {
		return errors.Wrapf(err, "schedule %s", name)
	}
	s.lg.Info("Scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.c.Start()
	<-ctx.Done()
	<-s.c.Stop().Done()
	return nil
}
