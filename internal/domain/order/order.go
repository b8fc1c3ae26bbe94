package order

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Storage limits of order columns.
const (
	ShippingAddressMaxLen = 255
	// MaxQuantity is the largest quantity an INTEGER column holds.
	MaxQuantity = math.MaxInt32
)

// MaxTotal is the largest total_price a NUMERIC(12,2) column holds.
var MaxTotal = decimal.RequireFromString("9999999999.99")

func validQuantity(q int) bool {
	return q >= 1 && q <= MaxQuantity
}

// Order is a customer purchase. TotalPrice is derived from Items and is only
// ever written by the recalculation step.
type Order struct {
	ID                  int64
	CustomerID          int64
	ShippingAddress     string
	CreatedAt           time.Time
	PaymentDueDate      time.Time
	TotalPrice          decimal.Decimal
	IsPaid              bool
	PaymentReminderSent bool
	Items               []Item
}

// Item is a single order line. UnitPrice is the product price captured when
// the line was created and is never re-read from the catalog.
type Item struct {
	ID          int64
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// LineTotal returns quantity × unit price.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total sums the line totals of items.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total.Round(2)
}

// Date truncates t to the calendar day it falls on in its own location and
// returns that day as UTC midnight, the representation used for DATE columns.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ListFilter selects a page of orders. A zero CustomerID lists all orders.
type ListFilter struct {
	CustomerID int64
	Limit      int
	Offset     int
}

// Ledger is the transactional view of one or more orders and their items.
// It is only valid inside Repository.Atomic.
type Ledger interface {
	// InsertOrder stores o and fills in its ID and CreatedAt.
	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, orderID int64, items []Item) error
	// AddItem returns ErrDuplicateItem when the product is already on the order.
	AddItem(ctx context.Context, orderID int64, item *Item) error
	// SetItemQuantity and DeleteItem return ErrItemNotFound when the order has
	// no line for the product.
	SetItemQuantity(ctx context.Context, orderID, productID int64, quantity int) error
	DeleteItem(ctx context.Context, orderID, productID int64) error
	Items(ctx context.Context, orderID int64) ([]Item, error)
	// SetTotal writes total_price and nothing else.
	SetTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
	// GetForUpdate locks the order row until the transaction ends.
	GetForUpdate(ctx context.Context, orderID int64) (*Order, error)
}

// Repository persists orders.
type Repository interface {
	// Atomic runs fn in a single transaction, committing only if fn returns nil.
	Atomic(ctx context.Context, fn func(ctx context.Context, l Ledger) error) error
	// Get returns the order with its items.
	Get(ctx context.Context, id int64) (*Order, error)
	// List returns a page of orders with their items, newest first, and the
	// total number of matches.
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	// MarkPaid flips is_paid to true. Already paid orders are left unchanged.
	MarkPaid(ctx context.Context, id int64) error
}
