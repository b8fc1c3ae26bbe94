package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/reminder"
)

const (
	dueForReminderSQL = `SELECT o.id, o.total_price, o.payment_due_date,
		u.id, u.username, u.email, u.first_name, u.last_name
		FROM orders o JOIN users u ON u.id = o.customer_id
		WHERE o.payment_due_date = $1 AND NOT o.is_paid AND NOT o.payment_reminder_sent AND o.id > $2
		ORDER BY o.id LIMIT $3`
	claimReminderSQL = `UPDATE orders SET payment_reminder_sent = TRUE
		WHERE id = $1 AND NOT is_paid AND NOT payment_reminder_sent`
	releaseReminderSQL = `UPDATE orders SET payment_reminder_sent = FALSE WHERE id = $1`
)

var _ reminder.Store = (*ReminderStore)(nil)

// ReminderStore implements reminder.Store backed by PostgreSQL.
type ReminderStore struct {
	pool *pgxpool.Pool
}

// NewReminderStore returns a ReminderStore that uses the given pool.
func NewReminderStore(pool *pgxpool.Pool) *ReminderStore {
	return &ReminderStore{pool: pool}
}

// DueForReminder returns the next chunk of unreminded, unpaid orders due on
// the given date.
func (s *ReminderStore) DueForReminder(ctx context.Context, due time.Time, afterID int64, limit int) ([]reminder.Candidate, error) {
	rows, err := s.pool.Query(ctx, dueForReminderSQL, due, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting orders due %s: %w", due.Format(time.DateOnly), err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (reminder.Candidate, error) {
		var c reminder.Candidate
		err := row.Scan(
			&c.OrderID, &c.TotalPrice, &c.PaymentDueDate,
			&c.Customer.ID, &c.Customer.Username, &c.Customer.Email,
			&c.Customer.FirstName, &c.Customer.LastName,
		)
		return c, err
	})
}

// ClaimReminder flips payment_reminder_sent from false to true. It reports
// false when the order was paid or claimed in the meantime.
func (s *ReminderStore) ClaimReminder(ctx context.Context, orderID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, claimReminderSQL, orderID)
	if err != nil {
		return false, fmt.Errorf("claiming reminder of order %d: %w", orderID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseReminder resets payment_reminder_sent.
func (s *ReminderStore) ReleaseReminder(ctx context.Context, orderID int64) error {
	if _, err := s.pool.Exec(ctx, releaseReminderSQL, orderID); err != nil {
		return fmt.Errorf("releasing reminder of order %d: %w", orderID, err)
	}
	return nil
}
