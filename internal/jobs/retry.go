package jobs

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryConfig bounds whole-task retries.
type RetryConfig struct {
	MaxRetries      uint64        `default:"5" usage:"Maximum retries of a failed task run"`
	InitialInterval time.Duration `default:"5s" usage:"Delay before the first retry"`
	MaxInterval     time.Duration `default:"5m" usage:"Upper bound of the retry delay"`
	Multiplier      float64       `default:"2" usage:"Retry delay growth factor"`
	Jitter          float64       `default:"0.5" usage:"Randomization factor applied to retry delays"`
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	if c.Multiplier > 0 {
		b.Multiplier = c.Multiplier
	}
	if c.Jitter >= 0 && c.Jitter < 1 {
		b.RandomizationFactor = c.Jitter
	}
	// The retry count is the only bound.
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, c.MaxRetries), ctx)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op until it succeeds, returns a Permanent error, the retry
// budget is spent or ctx is done. The last error is returned.
func Retry(ctx context.Context, lg *zap.Logger, cfg RetryConfig, op func(ctx context.Context) error) error {
	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return op(ctx)
		},
		cfg.backOff(ctx),
		func(err error, next time.Duration) {
			lg.Warn("Task failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err),
			)
		},
	)
}
