package jobs

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Task is a named unit of background work run under a lock with retries.
type Task struct {
	Name    string
	Run     func(ctx context.Context) error
	Locker  Locker
	LockTTL time.Duration
	Retry   RetryConfig
	// Tracer records one span per execution. Nil disables tracing.
	Tracer trace.Tracer
}

// Execute runs the task once, retrying infrastructure failures. It returns
// nil without running when another runner holds the task lock. The execution
// span is linked to links, typically the span that requested the run.
func (t *Task) Execute(ctx context.Context, lg *zap.Logger, links ...trace.Link) error {
	tracer := t.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	ctx, span := tracer.Start(ctx, "task."+t.Name,
		trace.WithLinks(links...),
		trace.WithAttributes(attribute.String("task.name", t.Name)),
	)
	defer span.End()

	lg = lg.With(zap.String("task", t.Name))
	start := time.Now()

	err := Retry(ctx, lg, t.Retry, func(ctx context.Context) error {
		lock, err := t.Locker.TryLock(ctx, "task:"+t.Name, t.LockTTL)
		if errors.Is(err, ErrLocked) {
			return Permanent(err)
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				lg.Warn("Failed to release task lock", zap.Error(err))
			}
		}()
		return t.Run(ctx)
	})

	switch {
	case errors.Is(err, ErrLocked):
		span.SetAttributes(attribute.Bool("task.skipped", true))
		lg.Info("Task already running elsewhere, skipped")
		return nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		lg.Error("Task failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return errors.Wrapf(err, "task %s", t.Name)
	}
	lg.Info("Task finished", zap.Duration("duration", time.Since(start)))
	return nil
}
