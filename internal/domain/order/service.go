package order

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/notify"
)

// Sentinel errors for order validation and lookup.
var (
	ErrEmptyItems              = errors.New("items required")
	ErrShippingAddressRequired = errors.New("shipping address required")
	ErrShippingAddressTooLong  = errors.New("shipping address too long")
	ErrNotFound                = errors.New("order not found")
	ErrItemNotFound            = errors.New("order item not found")
	ErrDuplicateItem           = errors.New("product already on order")
	ErrTotalTooLarge           = errors.New("order total exceeds 9999999999.99")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InvalidQuantityError indicates a line item quantity outside 1..MaxQuantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for product %d", MaxQuantity, e.ProductID)
}

// DuplicateProductError indicates the same product appears twice in one order.
type DuplicateProductError struct {
	ProductID int64
}

func (e *DuplicateProductError) Error() string {
	return fmt.Sprintf("product %d listed more than once", e.ProductID)
}

// ProductLookup fetches catalog products in bulk.
type ProductLookup interface {
	GetByIDs(ctx context.Context, ids []int64) ([]catalog.Product, error)
}

// LineRequest is a requested order line.
type LineRequest struct {
	ProductID int64
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	ShippingAddress string
	// FullName optionally updates the requester's profile.
	FullName string
	// PaymentDueDate defaults to today plus the payment term.
	PaymentDueDate *time.Time
	Items          []LineRequest
}

// Page is one page of an order listing.
type Page struct {
	Count  int
	Page   int
	Orders []Order
}

// Config tunes order placement.
type Config struct {
	PaymentTermDays int
	// Location defines "today" for due dates.
	Location      *time.Location
	NotifyTimeout time.Duration
	Currency      string
	PageSize      int
}

func (c *Config) setDefaults() {
	if c.PaymentTermDays <= 0 {
		c.PaymentTermDays = 5
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 10 * time.Second
	}
	if c.Currency == "" {
		c.Currency = "PLN"
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
}

// Service encapsulates order placement and ledger maintenance.
type Service struct {
	products  ProductLookup
	orders    Repository
	customers customer.Repository
	notifier  notify.Notifier
	cfg       Config
	placed    metric.Int64Counter
	now       func() time.Time
}

// NewService creates an order Service. A nil meter disables metrics.
func NewService(
	products ProductLookup,
	orders Repository,
	customers customer.Repository,
	notifier notify.Notifier,
	cfg Config,
	meter metric.Meter,
) (*Service, error) {
	cfg.setDefaults()
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	placed, err := meter.Int64Counter("shop.orders.placed",
		metric.WithDescription("Number of orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	return &Service{
		products:  products,
		orders:    orders,
		customers: customers,
		notifier:  notifier,
		cfg:       cfg,
		placed:    placed,
		now:       time.Now,
	}, nil
}

func (s *Service) today() time.Time {
	return Date(s.now().In(s.cfg.Location))
}

// PlaceOrder validates the request, snapshots product prices and persists the
// order with its items in one transaction. The profile update and the
// confirmation message happen after commit and never fail the call.
func (s *Service) PlaceOrder(ctx context.Context, p *auth.Principal, req PlaceOrderRequest) (*Order, error) {
	if err := auth.RequireUser(p); err != nil {
		return nil, err
	}
	addr := strings.TrimSpace(req.ShippingAddress)
	if addr == "" {
		return nil, ErrShippingAddressRequired
	}
	if utf8.RuneCountInString(addr) > ShippingAddressMaxLen {
		return nil, ErrShippingAddressTooLong
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]int64, len(req.Items))
	seen := make(map[int64]struct{}, len(req.Items))
	for i, line := range req.Items {
		if !validQuantity(line.Quantity) {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		if _, ok := seen[line.ProductID]; ok {
			return nil, &DuplicateProductError{ProductID: line.ProductID}
		}
		seen[line.ProductID] = struct{}{}
		ids[i] = line.ProductID
	}

	products, err := s.lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(req.Items))
	for i, line := range req.Items {
		prod := products[line.ProductID]
		items[i] = Item{
			ProductID:   prod.ID,
			ProductName: prod.Name,
			Quantity:    line.Quantity,
			UnitPrice:   prod.Price,
		}
	}
	if Total(items).GreaterThan(MaxTotal) {
		return nil, ErrTotalTooLarge
	}

	due := s.today().AddDate(0, 0, s.cfg.PaymentTermDays)
	if req.PaymentDueDate != nil {
		due = Date(*req.PaymentDueDate)
	}

	o := &Order{
		CustomerID:      p.UserID,
		ShippingAddress: addr,
		PaymentDueDate:  due,
	}
	if err := s.orders.Atomic(ctx, func(ctx context.Context, l Ledger) error {
		if err := l.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := l.InsertItems(ctx, o.ID, items); err != nil {
			return errors.Wrap(err, "insert items")
		}
		persisted, total, err := recalculate(ctx, l, o.ID)
		if err != nil {
			return err
		}
		o.Items = persisted
		o.TotalPrice = total
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	s.placed.Add(ctx, 1)

	lg := zctx.From(ctx).With(zap.Int64("order_id", o.ID))
	lg.Info("Order placed",
		zap.Int64("customer_id", o.CustomerID),
		zap.Int("items", len(o.Items)),
		zap.String("total", o.TotalPrice.StringFixed(2)),
	)

	s.updateProfile(ctx, lg, p.UserID, req.FullName)
	s.sendConfirmation(ctx, lg, o)

	return o, nil
}

func (s *Service) lookup(ctx context.Context, ids []int64) (map[int64]catalog.Product, error) {
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]catalog.Product, len(fetched))
	for _, prod := range fetched {
		byID[prod.ID] = prod
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, &ProductNotFoundError{ProductID: id}
		}
	}
	return byID, nil
}

// recalculate rewrites total_price from the persisted items of the order and
// returns those items together with the new total. A total above MaxTotal
// fails with ErrTotalTooLarge.
func recalculate(ctx context.Context, l Ledger, orderID int64) ([]Item, decimal.Decimal, error) {
	items, err := l.Items(ctx, orderID)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "load items")
	}
	total := Total(items)
	if total.GreaterThan(MaxTotal) {
		return nil, decimal.Zero, ErrTotalTooLarge
	}
	if err := l.SetTotal(ctx, orderID, total); err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "set total")
	}
	return items, total, nil
}

func (s *Service) updateProfile(ctx context.Context, lg *zap.Logger, userID int64, fullName string) {
	if strings.TrimSpace(fullName) == "" {
		return
	}
	first, last := customer.SplitFullName(fullName)
	if err := s.customers.UpdateName(ctx, userID, first, last); err != nil {
		lg.Warn("Failed to update customer name", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *Service) sendConfirmation(ctx context.Context, lg *zap.Logger, o *Order) {
	u, err := s.customers.GetByID(ctx, o.CustomerID)
	if err != nil {
		lg.Warn("Failed to load customer for confirmation", zap.Error(err))
		return
	}
	if u.Email == "" {
		lg.Info("Customer has no email, confirmation skipped")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()

	if err := s.notifier.Send(ctx, ConfirmationMessage(u, o, s.cfg.Currency)); err != nil {
		lg.Warn("Failed to send order confirmation", zap.Error(err))
	}
}

// ConfirmationMessage renders the order confirmation sent to u.
func ConfirmationMessage(u *customer.User, o *Order, currency string) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", u.Greeting())
	fmt.Fprintf(&b, "Thank you for your order #%d.\n\n", o.ID)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "- %s × %d = %s %s\n", it.ProductName, it.Quantity, it.LineTotal().StringFixed(2), currency)
	}
	fmt.Fprintf(&b, "\nTotal: %s %s\n", o.TotalPrice.StringFixed(2), currency)
	fmt.Fprintf(&b, "Payment due: %s\n", o.PaymentDueDate.Format(time.DateOnly))
	fmt.Fprintf(&b, "Shipping to: %s\n", o.ShippingAddress)
	return notify.Message{
		To:      u.Email,
		Subject: fmt.Sprintf("Order confirmation #%d", o.ID),
		Body:    b.String(),
	}
}

// AddItem adds a product line to an existing order at the product's current
// price and recalculates the total.
func (s *Service) AddItem(ctx context.Context, p *auth.Principal, orderID int64, line LineRequest) (*Order, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	if !validQuantity(line.Quantity) {
		return nil, &InvalidQuantityError{ProductID: line.ProductID}
	}
	products, err := s.lookup(ctx, []int64{line.ProductID})
	if err != nil {
		return nil, err
	}
	prod := products[line.ProductID]

	return s.mutate(ctx, orderID, func(ctx context.Context, l Ledger) error {
		return l.AddItem(ctx, orderID, &Item{
			ProductID:   prod.ID,
			ProductName: prod.Name,
			Quantity:    line.Quantity,
			UnitPrice:   prod.Price,
		})
	})
}

// UpdateItemQuantity changes the quantity of an order line. The snapshotted
// unit price is kept.
func (s *Service) UpdateItemQuantity(ctx context.Context, p *auth.Principal, orderID, productID int64, quantity int) (*Order, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	if !validQuantity(quantity) {
		return nil, &InvalidQuantityError{ProductID: productID}
	}
	return s.mutate(ctx, orderID, func(ctx context.Context, l Ledger) error {
		return l.SetItemQuantity(ctx, orderID, productID, quantity)
	})
}

// RemoveItem deletes an order line.
func (s *Service) RemoveItem(ctx context.Context, p *auth.Principal, orderID, productID int64) (*Order, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	return s.mutate(ctx, orderID, func(ctx context.Context, l Ledger) error {
		return l.DeleteItem(ctx, orderID, productID)
	})
}

// Recalculate rewrites the total of an order from its items.
func (s *Service) Recalculate(ctx context.Context, p *auth.Principal, orderID int64) (*Order, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	return s.mutate(ctx, orderID, nil)
}

// mutate locks the order, applies change and recalculates the total, all in
// one transaction.
func (s *Service) mutate(ctx context.Context, orderID int64, change func(ctx context.Context, l Ledger) error) (*Order, error) {
	var o *Order
	err := s.orders.Atomic(ctx, func(ctx context.Context, l Ledger) error {
		var err error
		if o, err = l.GetForUpdate(ctx, orderID); err != nil {
			return err
		}
		if change != nil {
			if err := change(ctx, l); err != nil {
				return err
			}
		}
		o.Items, o.TotalPrice, err = recalculate(ctx, l, orderID)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// MarkPaid records payment of an order. Paid orders are excluded from
// payment reminders.
func (s *Service) MarkPaid(ctx context.Context, p *auth.Principal, orderID int64) (*Order, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	if err := s.orders.MarkPaid(ctx, orderID); err != nil {
		return nil, errors.Wrap(err, "mark paid")
	}
	return s.orders.Get(ctx, orderID)
}

// Get returns an order visible to p. Orders of other customers are reported
// as not found.
func (s *Service) Get(ctx context.Context, p *auth.Principal, orderID int64) (*Order, error) {
	if err := auth.RequireUser(p); err != nil {
		return nil, err
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(o.CustomerID) {
		return nil, ErrNotFound
	}
	return o, nil
}

// List returns a page of orders visible to p: their own, or all for sellers.
func (s *Service) List(ctx context.Context, p *auth.Principal, page int) (*Page, error) {
	if err := auth.RequireUser(p); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	f := ListFilter{
		Limit:  s.cfg.PageSize,
		Offset: (page - 1) * s.cfg.PageSize,
	}
	if !p.IsSeller {
		f.CustomerID = p.UserID
	}
	orders, count, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Count: count, Page: page, Orders: orders}, nil
}
