package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, customer_id, shipping_address, created_at, payment_due_date,
		total_price, is_paid, payment_reminder_sent`

	insertOrderSQL = `INSERT INTO orders (customer_id, shipping_address, payment_due_date)
		VALUES ($1, $2, $3) RETURNING id, created_at`
	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`
	listOrdersSQL        = `SELECT ` + orderColumns + ` FROM orders
		WHERE $1::bigint = 0 OR customer_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	countOrdersSQL = `SELECT count(*) FROM orders WHERE $1::bigint = 0 OR customer_id = $1`
	setTotalSQL    = `UPDATE orders SET total_price = $2 WHERE id = $1`
	markPaidSQL    = `UPDATE orders SET is_paid = TRUE WHERE id = $1`

	insertItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4) RETURNING id`
	setItemQuantitySQL = `UPDATE order_items SET quantity = $3 WHERE order_id = $1 AND product_id = $2`
	deleteItemSQL      = `DELETE FROM order_items WHERE order_id = $1 AND product_id = $2`
	listItemsSQL       = `SELECT i.order_id, i.id, i.product_id, p.name, i.quantity, i.unit_price
		FROM order_items i JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1) ORDER BY i.order_id, i.id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Atomic runs fn inside a transaction.
func (r *OrderRepository) Atomic(ctx context.Context, fn func(ctx context.Context, l order.Ledger) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &ledger{tx: tx})
	})
}

// Get returns the order with its items.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	o, err := getOrder(ctx, r.pool, getOrderSQL, id)
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, r.pool, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return o, nil
}

// List returns a page of orders with their items, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, countOrdersSQL, f.CustomerID).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, f.CustomerID, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, count, nil
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, count, nil
}

// MarkPaid flips is_paid to true.
func (r *OrderRepository) MarkPaid(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, markPaidSQL, id)
	if err != nil {
		return fmt.Errorf("marking order %d paid: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getOrder(ctx context.Context, q querier, sql string, id int64) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]order.Item, error) {
	rows, err := q.Query(ctx, listItemsSQL, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]order.Item, len(orderIDs))
	for rows.Next() {
		var (
			orderID int64
			it      order.Item
		)
		if err := rows.Scan(&orderID, &it.ID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.ShippingAddress, &o.CreatedAt, &o.PaymentDueDate,
		&o.TotalPrice, &o.IsPaid, &o.PaymentReminderSent,
	)
	return o, err
}

// ledger implements order.Ledger on a transaction.
type ledger struct {
	tx pgx.Tx
}

var _ order.Ledger = (*ledger)(nil)

func (l *ledger) InsertOrder(ctx context.Context, o *order.Order) error {
	err := l.tx.QueryRow(ctx, insertOrderSQL, o.CustomerID, o.ShippingAddress, o.PaymentDueDate).
		Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func (l *ledger) InsertItems(ctx context.Context, orderID int64, items []order.Item) error {
	b := &pgx.Batch{}
	for _, it := range items {
		b.Queue(insertItemSQL, orderID, it.ProductID, it.Quantity, it.UnitPrice)
	}
	br := l.tx.SendBatch(ctx, b)
	for _, it := range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return itemError(err, orderID, it.ProductID)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("inserting items of order %d: %w", orderID, err)
	}
	return nil
}

func (l *ledger) AddItem(ctx context.Context, orderID int64, item *order.Item) error {
	err := l.tx.QueryRow(ctx, insertItemSQL, orderID, item.ProductID, item.Quantity, item.UnitPrice).
		Scan(&item.ID)
	if err != nil {
		return itemError(err, orderID, item.ProductID)
	}
	return nil
}

func itemError(err error, orderID, productID int64) error {
	switch pgCode(err) {
	case codeUniqueViolation:
		return order.ErrDuplicateItem
	case codeForeignKeyViolation:
		return &order.ProductNotFoundError{ProductID: productID}
	}
	return fmt.Errorf("inserting item of order %d: %w", orderID, err)
}

func (l *ledger) SetItemQuantity(ctx context.Context, orderID, productID int64, quantity int) error {
	tag, err := l.tx.Exec(ctx, setItemQuantitySQL, orderID, productID, quantity)
	if err != nil {
		return fmt.Errorf("updating item of order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrItemNotFound
	}
	return nil
}

func (l *ledger) DeleteItem(ctx context.Context, orderID, productID int64) error {
	tag, err := l.tx.Exec(ctx, deleteItemSQL, orderID, productID)
	if err != nil {
		return fmt.Errorf("deleting item of order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrItemNotFound
	}
	return nil
}

func (l *ledger) Items(ctx context.Context, orderID int64) ([]order.Item, error) {
	items, err := loadItems(ctx, l.tx, []int64{orderID})
	if err != nil {
		return nil, err
	}
	return items[orderID], nil
}

func (l *ledger) SetTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	if _, err := l.tx.Exec(ctx, setTotalSQL, orderID, total); err != nil {
		return fmt.Errorf("setting total of order %d: %w", orderID, err)
	}
	return nil
}

func (l *ledger) GetForUpdate(ctx context.Context, orderID int64) (*order.Order, error) {
	return getOrder(ctx, l.tx, getOrderForUpdateSQL, orderID)
}
