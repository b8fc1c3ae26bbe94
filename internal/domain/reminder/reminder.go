// Package reminder sends payment reminders for unpaid orders due tomorrow.
//
// Every order is claimed with an atomic conditional update before its
// reminder is sent, so concurrent runners never send the same reminder twice.
// A failed send releases the claim and the order is retried by the next run.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/notify"
)

// Candidate is an unpaid, not yet reminded order together with its customer.
type Candidate struct {
	OrderID        int64
	TotalPrice     decimal.Decimal
	PaymentDueDate time.Time
	Customer       customer.User
}

// Store selects and claims orders for reminders.
type Store interface {
	// DueForReminder returns up to limit unpaid, not reminded orders due on
	// the given date with id greater than afterID, ordered by id.
	DueForReminder(ctx context.Context, due time.Time, afterID int64, limit int) ([]Candidate, error)
	// ClaimReminder marks the order as reminded if it is still unpaid and not
	// reminded. It reports whether this call made the transition.
	ClaimReminder(ctx context.Context, orderID int64) (bool, error)
	// ReleaseReminder reverts a claim after a failed delivery.
	ReleaseReminder(ctx context.Context, orderID int64) error
}

// Config tunes a reminder run.
type Config struct {
	ChunkSize   int
	Location    *time.Location
	SendTimeout time.Duration
	Currency    string
}

func (c *Config) setDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 500
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.Currency == "" {
		c.Currency = "PLN"
	}
}

// Result summarizes a run.
type Result struct {
	Scanned int
	Sent    int
	// Skipped counts orders without an email address and orders claimed by
	// another runner.
	Skipped int
	Failed  int
}

// Runner executes reminder batches.
type Runner struct {
	store    Store
	notifier notify.Notifier
	cfg      Config
	sent     metric.Int64Counter
	failed   metric.Int64Counter
	now      func() time.Time
}

// NewRunner creates a Runner. A nil meter disables metrics.
func NewRunner(store Store, notifier notify.Notifier, cfg Config, meter metric.Meter) (*Runner, error) {
	cfg.setDefaults()
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	sent, err := meter.Int64Counter("shop.reminders.sent",
		metric.WithDescription("Number of payment reminders delivered"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create sent counter")
	}
	failed, err := meter.Int64Counter("shop.reminders.failed",
		metric.WithDescription("Number of payment reminders that could not be delivered"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}
	return &Runner{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		sent:     sent,
		failed:   failed,
		now:      time.Now,
	}, nil
}

// Run sends reminders for every eligible order due tomorrow. Per-order
// delivery failures are counted and do not stop the run; store failures and
// context cancellation abort it and are returned along with the partial
// result.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result
	tomorrow := order.Date(r.now().In(r.cfg.Location)).AddDate(0, 0, 1)
	lg := zctx.From(ctx).With(zap.String("due", tomorrow.Format(time.DateOnly)))

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch, err := r.store.DueForReminder(ctx, tomorrow, afterID, r.cfg.ChunkSize)
		if err != nil {
			return res, errors.Wrap(err, "select due orders")
		}
		for _, c := range batch {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Scanned++
			afterID = c.OrderID
			if err := r.process(ctx, lg.With(zap.Int64("order_id", c.OrderID)), c, &res); err != nil {
				return res, err
			}
		}
		if len(batch) < r.cfg.ChunkSize {
			break
		}
	}

	lg.Info("Payment reminders done",
		zap.Int("scanned", res.Scanned),
		zap.Int("sent", res.Sent),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (r *Runner) process(ctx context.Context, lg *zap.Logger, c Candidate, res *Result) error {
	if c.Customer.Email == "" {
		lg.Info("Customer has no email, reminder skipped", zap.Int64("customer_id", c.Customer.ID))
		res.Skipped++
		return nil
	}

	claimed, err := r.store.ClaimReminder(ctx, c.OrderID)
	if err != nil {
		return errors.Wrapf(err, "claim order %d", c.OrderID)
	}
	if !claimed {
		lg.Debug("Order already claimed")
		res.Skipped++
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	err = r.notifier.Send(sendCtx, Message(c, r.cfg.Currency))
	cancel()
	if err != nil {
		lg.Warn("Failed to send payment reminder", zap.Error(err))
		res.Failed++
		r.failed.Add(ctx, 1)
		if err := r.store.ReleaseReminder(context.WithoutCancel(ctx), c.OrderID); err != nil {
			lg.Error("Failed to release reminder claim", zap.Error(err))
		}
		return nil
	}

	res.Sent++
	r.sent.Add(ctx, 1)
	return nil
}

// Message renders the payment reminder for c.
func Message(c Candidate, currency string) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", c.Customer.Greeting())
	fmt.Fprintf(&b, "This is a reminder that payment for order #%d is due on %s.\n",
		c.OrderID, c.PaymentDueDate.Format(time.DateOnly))
	fmt.Fprintf(&b, "Amount due: %s %s\n", c.TotalPrice.StringFixed(2), currency)
	return notify.Message{
		To:      c.Customer.Email,
		Subject: fmt.Sprintf("Payment reminder for order #%d", c.OrderID),
		Body:    b.String(),
	}
}
