package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/reminder"
	"github.com/xenking/storefront/internal/jobs"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/internal/storage/postgres"
)

// deps are the infrastructure handles shared by the API and the worker.
type deps struct {
	pool     *pgxpool.Pool
	redis    *redis.Client // nil when Redis is not configured
	loc      *time.Location
	meter    metric.Meter
	tracer   trace.Tracer
	notifier notify.Notifier
}

func newDeps(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) (*deps, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	d := &deps{
		pool:   pool,
		loc:    cfg.Location(),
		meter:  m.MeterProvider().Meter("storefront"),
		tracer: m.TracerProvider().Tracer("storefront"),
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			d.close()
			return nil, errors.Wrap(err, "parse redis url")
		}
		d.redis = redis.NewClient(opts)
	} else {
		lg.Info("Redis not configured, task triggers and locks are in-process")
	}

	switch cfg.Mail.Backend {
	case "smtp":
		mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			StartTLS: cfg.Mail.StartTLS,
			Timeout:  cfg.Mail.Timeout,
		})
		if err != nil {
			d.close()
			return nil, errors.Wrap(err, "create smtp mailer")
		}
		d.notifier = mailer
	default:
		d.notifier = notify.NewConsoleMailer(lg.Named("mail"))
	}
	return d, nil
}

func (d *deps) close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	d.pool.Close()
}

// redisPing returns a health check for the broker, or nil without one.
func (d *deps) redisPing() func(ctx context.Context) error {
	if d.redis == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return d.redis.Ping(ctx).Err()
	}
}

// taskQueue returns the trigger queue and task locker. Without Redis both
// only work within this process.
func (d *deps) taskQueue(cfg *Config) (jobs.Queue, jobs.Locker) {
	if d.redis == nil {
		return jobs.NewLocalQueue(1), jobs.NewLocalLocker()
	}
	return jobs.NewRedisQueue(d.redis, cfg.Reminder.QueueKey), jobs.NewRedisLocker(d.redis, "shop:lock:")
}

func (d *deps) reminderRunner(cfg *Config) (*reminder.Runner, error) {
	return reminder.NewRunner(postgres.NewReminderStore(d.pool), d.notifier, reminder.Config{
		ChunkSize:   cfg.Reminder.ChunkSize,
		Location:    d.loc,
		SendTimeout: cfg.Mail.Timeout,
		Currency:    cfg.Currency,
	}, d.meter)
}
