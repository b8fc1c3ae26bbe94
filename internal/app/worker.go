package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/reminder"
	"github.com/xenking/storefront/internal/jobs"
)

const reminderTaskName = "payment-reminders"

// RunWorker runs the payment reminder job on its cron schedule and on manual
// triggers until ctx is done.
func RunWorker(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	d, err := newDeps(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	queue, locker := d.taskQueue(cfg)
	runner, err := d.reminderRunner(cfg)
	if err != nil {
		return errors.Wrap(err, "create reminder runner")
	}
	return runReminderWorker(ctx, lg, cfg, d, runner, queue, locker)
}

func runReminderWorker(
	ctx context.Context,
	lg *zap.Logger,
	cfg *Config,
	d *deps,
	runner *reminder.Runner,
	queue jobs.Queue,
	locker jobs.Locker,
) error {
	lg = lg.Named("worker")
	task := reminderTask(lg, cfg, runner, locker, d.tracer)

	sched := jobs.NewScheduler(lg, d.loc)
	if err := sched.Add(task.Name, cfg.Reminder.Schedule, func() {
		_ = task.Execute(ctx, lg)
	}); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx)
	})
	g.Go(func() error {
		return consumeTriggers(ctx, lg, queue, cfg.Reminder.PollTimeout, task)
	})
	lg.Info("Worker started", zap.String("schedule", cfg.Reminder.Schedule), zap.String("tz", d.loc.String()))
	return g.Wait()
}

func reminderTask(lg *zap.Logger, cfg *Config, runner *reminder.Runner, locker jobs.Locker, tracer trace.Tracer) *jobs.Task {
	return &jobs.Task{
		Name:    reminderTaskName,
		Locker:  locker,
		LockTTL: cfg.Reminder.LockTTL,
		Retry:   cfg.Reminder.Retry,
		Tracer:  tracer,
		Run: func(ctx context.Context) error {
			res, err := runner.Run(ctx)
			lg.Info("Payment reminders processed",
				zap.Int("scanned", res.Scanned),
				zap.Int("sent", res.Sent),
				zap.Int("skipped", res.Skipped),
				zap.Int("failed", res.Failed),
			)
			return err
		},
	}
}

// consumeTriggers runs task once per trigger popped from queue.
func consumeTriggers(ctx context.Context, lg *zap.Logger, queue jobs.Queue, poll time.Duration, task *jobs.Task) error {
	for {
		t, err := queue.Pop(ctx, poll)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			lg.Warn("Failed to receive task trigger", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(poll):
			}
			continue
		case t == nil:
			continue
		}
		lg.Info("Task triggered",
			zap.String("task", task.Name),
			zap.String("by", t.RequestedBy),
			zap.Time("at", t.RequestedAt),
		)
		_ = task.Execute(ctx, lg, t.Links()...)
	}
}
