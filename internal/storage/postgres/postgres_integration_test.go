//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/reminder"
	"github.com/xenking/storefront/internal/domain/stats"
	"github.com/xenking/storefront/internal/notify"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("shop"),
		tcpostgres.WithUsername("shop"),
		tcpostgres.WithPassword("shop"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		panic(err)
	}
	defer func() { _ = testcontainers.TerminateContainer(ctr) }()

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		panic(err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		panic(err)
	}
	return m.Run()
}

type fixture struct {
	buyerID  int64
	sellerID int64
	category int64
	widget   int64
	gadget   int64
}

func seed(t *testing.T, suffix string) fixture {
	t.Helper()
	ctx := context.Background()
	s := NewSeeder(testPool)
	users := NewUserRepository(testPool)

	var f fixture
	var err error
	f.buyerID, err = s.UpsertUser(ctx, "buyer"+suffix, "buyer"+suffix+"@example.com", "", "")
	require.NoError(t, err)
	f.sellerID, err = s.UpsertUser(ctx, "seller"+suffix, "", "", "")
	require.NoError(t, err)
	_, err = users.EnsureGroup(ctx, "seller")
	require.NoError(t, err)
	require.NoError(t, users.AddMember(ctx, "seller", "seller"+suffix))

	f.category, err = s.UpsertCategory(ctx, "Tools"+suffix)
	require.NoError(t, err)
	f.widget, err = s.UpsertProduct(ctx, f.category, "Widget", "", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	f.gadget, err = s.UpsertProduct(ctx, f.category, "Gadget", "", decimal.RequireFromString("2.50"))
	require.NoError(t, err)
	return f
}

func newOrderService(t *testing.T, n notify.Notifier) *order.Service {
	t.Helper()
	svc, err := order.NewService(
		NewProductRepository(testPool),
		NewOrderRepository(testPool),
		NewUserRepository(testPool),
		n,
		order.Config{},
		nil,
	)
	require.NoError(t, err)
	return svc
}

type memNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *memNotifier) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func TestOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	f := seed(t, "-lifecycle")
	buyer := &auth.Principal{UserID: f.buyerID}
	seller := &auth.Principal{UserID: f.sellerID, IsSeller: true}
	n := &memNotifier{}
	svc := newOrderService(t, n)

	o, err := svc.PlaceOrder(ctx, buyer, order.PlaceOrderRequest{
		ShippingAddress: "1 Main St",
		FullName:        "Jan Kowalski",
		Items: []order.LineRequest{
			{ProductID: f.widget, Quantity: 2},
			{ProductID: f.gadget, Quantity: 3},
		},
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("27.50").Equal(o.TotalPrice))
	assert.Len(t, n.sent, 1)

	u, err := NewUserRepository(testPool).GetByID(ctx, f.buyerID)
	require.NoError(t, err)
	assert.Equal(t, "Jan", u.FirstName)
	assert.Equal(t, "Kowalski", u.LastName)

	p, err := NewProductRepository(testPool).GetByID(ctx, f.widget)
	require.NoError(t, err)
	p.Price = decimal.RequireFromString("99.00")
	require.NoError(t, NewProductRepository(testPool).Update(ctx, p))

	o, err = svc.RemoveItem(ctx, seller, o.ID, f.gadget)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("20.00").Equal(o.TotalPrice))

	_, err = svc.AddItem(ctx, seller, o.ID, order.LineRequest{ProductID: f.widget, Quantity: 1})
	require.ErrorIs(t, err, order.ErrDuplicateItem)

	got, err := svc.Get(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.True(t, order.Total(got.Items).Equal(got.TotalPrice))
	assert.True(t, decimal.RequireFromString("10.00").Equal(got.Items[0].UnitPrice))
}

func TestPlaceOrder_UnknownProductPersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := seed(t, "-unknown")
	svc := newOrderService(t, &memNotifier{})

	_, err := svc.PlaceOrder(ctx, &auth.Principal{UserID: f.buyerID}, order.PlaceOrderRequest{
		ShippingAddress: "1 Main St",
		Items:           []order.LineRequest{{ProductID: 1 << 40, Quantity: 1}},
	})
	var pnf *order.ProductNotFoundError
	require.ErrorAs(t, err, &pnf)

	orders, count, err := NewOrderRepository(testPool).List(ctx, order.ListFilter{CustomerID: f.buyerID, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Zero(t, count)
}

func TestReferentialProtection(t *testing.T) {
	ctx := context.Background()
	f := seed(t, "-protect")
	svc := newOrderService(t, &memNotifier{})
	_, err := svc.PlaceOrder(ctx, &auth.Principal{UserID: f.buyerID}, order.PlaceOrderRequest{
		ShippingAddress: "1 Main St",
		Items:           []order.LineRequest{{ProductID: f.widget, Quantity: 1}},
	})
	require.NoError(t, err)

	require.ErrorIs(t, NewCategoryRepository(testPool).Delete(ctx, f.category), catalog.ErrCategoryInUse)
	require.ErrorIs(t, NewProductRepository(testPool).Delete(ctx, f.widget), catalog.ErrProductInUse)
	require.NoError(t, NewProductRepository(testPool).Delete(ctx, f.gadget))
}

func TestReminderRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := seed(t, "-reminder")
	svc := newOrderService(t, &memNotifier{})
	buyer := &auth.Principal{UserID: f.buyerID}
	tomorrow := order.Date(time.Now().UTC()).AddDate(0, 0, 1)

	due, err := svc.PlaceOrder(ctx, buyer, order.PlaceOrderRequest{
		ShippingAddress: "1 Main St",
		PaymentDueDate:  &tomorrow,
		Items:           []order.LineRequest{{ProductID: f.widget, Quantity: 1}},
	})
	require.NoError(t, err)
	paid, err := svc.PlaceOrder(ctx, buyer, order.PlaceOrderRequest{
		ShippingAddress: "1 Main St",
		PaymentDueDate:  &tomorrow,
		Items:           []order.LineRequest{{ProductID: f.gadget, Quantity: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, NewOrderRepository(testPool).MarkPaid(ctx, paid.ID))

	n := &memNotifier{}
	runner, err := reminder.NewRunner(NewReminderStore(testPool), n, reminder.Config{}, nil)
	require.NoError(t, err)

	first, err := runner.Run(ctx)
	require.NoError(t, err)
	second, err := runner.Run(ctx)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, first.Sent, 1)
	assert.Zero(t, second.Sent)
	for _, msg := range n.sent {
		assert.NotEqual(t, fmt.Sprintf("Payment reminder for order #%d", paid.ID), msg.Subject)
	}
	got, err := NewOrderRepository(testPool).Get(ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, got.PaymentReminderSent)
}

func TestClaimReminderOnce(t *testing.T) {
	ctx := context.Background()
	f := seed(t, "-claim")
	svc := newOrderService(t, &memNotifier{})
	o, err := svc.PlaceOrder(ctx, &auth.Principal{UserID: f.buyerID}, order.PlaceOrderRequest{
		ShippingAddress: "1 Main St",
		Items:           []order.LineRequest{{ProductID: f.widget, Quantity: 1}},
	})
	require.NoError(t, err)

	store := NewReminderStore(testPool)
	ok, err := store.ClaimReminder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.ClaimReminder(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseReminder(ctx, o.ID))
	ok, err = store.ClaimReminder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTopProducts(t *testing.T) {
	ctx := context.Background()
	repo := NewStatsRepository(testPool, time.UTC)

	empty, err := repo.TopProducts(ctx, stats.Query{
		From:  time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		To:    time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC),
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, empty)

	f := seed(t, "-stats")
	svc := newOrderService(t, &memNotifier{})
	_, err = svc.PlaceOrder(ctx, &auth.Principal{UserID: f.buyerID}, order.PlaceOrderRequest{
		ShippingAddress: "1 Main St",
		Items: []order.LineRequest{
			{ProductID: f.widget, Quantity: 1},
			{ProductID: f.gadget, Quantity: 500},
		},
	})
	require.NoError(t, err)

	today := order.Date(time.Now().UTC())
	top, err := repo.TopProducts(ctx, stats.Query{From: today.AddDate(0, 0, -1), To: today.AddDate(0, 0, 1), Limit: 1})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, f.gadget, top[0].ProductID)
	assert.GreaterOrEqual(t, top[0].UnitsOrdered, int64(500))
}

func TestAPIKeyLookup(t *testing.T) {
	ctx := context.Background()
	f := seed(t, "-apikey")
	s := NewSeeder(testPool)
	hash := auth.HashAPIKey([]byte("pepper"), "secret-apikey")
	require.NoError(t, s.UpsertAPIKey(ctx, "k-apikey", hash, f.sellerID, "test"))

	info, err := NewAPIKeyRepository(testPool).FindByHash(ctx, hash, "seller")
	require.NoError(t, err)
	assert.Equal(t, f.sellerID, info.Principal.UserID)
	assert.True(t, info.Principal.IsSeller)

	_, err = NewAPIKeyRepository(testPool).FindByHash(ctx, "nope", "seller")
	require.ErrorIs(t, err, auth.ErrKeyNotFound)
}

func TestProductListFilters(t *testing.T) {
	ctx := context.Background()
	f := seed(t, "-filters")
	repo := NewProductRepository(testPool)
	maxPrice := decimal.RequireFromString("5")

	products, count, err := repo.List(ctx, catalog.ProductFilter{
		CategoryID: f.category,
		MaxPrice:   &maxPrice,
		Ordering:   "-price",
		Limit:      20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, products, 1)
	assert.Equal(t, f.gadget, products[0].ID)

	products, _, err = repo.List(ctx, catalog.ProductFilter{CategoryName: "tools-filters", Ordering: "name", Limit: 20})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Gadget", products[0].Name)
}

func TestAddMember_MissingUser(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepository(testPool)
	_, err := users.EnsureGroup(ctx, "seller")
	require.NoError(t, err)

	require.ErrorIs(t, users.AddMember(ctx, "seller", "nobody"), customer.ErrNotFound)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, testPool))

	var applied int
	require.NoError(t, testPool.QueryRow(ctx, "SELECT count(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
}
