//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const (
	testPepper      = "integration-pepper"
	testSellerKey   = "seller-integration-key"
	testCustomerKey = "customer-integration-key"
)

var (
	testPool   *pgxpool.Pool
	baseURL    string
	widgetID   int64
	gadgetID   int64
	categoryID int64
)

// Response types are declared here so the suite only sees the wire format.

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type reportResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Redis    *bool  `json:"redis"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type productResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category int64  `json:"category"`
}

type productPage struct {
	Count   int               `json:"count"`
	Results []productResponse `json:"results"`
}

type orderItemResponse struct {
	Product   int64  `json:"product"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type orderResponse struct {
	ID             int64               `json:"id"`
	Customer       int64               `json:"customer"`
	TotalPrice     string              `json:"total_price"`
	PaymentDueDate string              `json:"payment_due_date"`
	IsPaid         bool                `json:"is_paid"`
	Items          []orderItemResponse `json:"items"`
}

type orderRequest struct {
	ShippingAddress string             `json:"shipping_address"`
	Items           []orderLineRequest `json:"items"`
}

type orderLineRequest struct {
	Product  int64 `json:"product"`
	Quantity int   `json:"quantity"`
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, 5*time.Minute)
	defer startCancel()

	ctr, err := tcpostgres.Run(startCtx, "postgres:17-alpine",
		tcpostgres.WithDatabase("shop"),
		tcpostgres.WithUsername("shop"),
		tcpostgres.WithPassword("shop"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		panic(err)
	}
	defer func() { _ = testcontainers.TerminateContainer(ctr) }()

	dsn, err := ctr.ConnectionString(startCtx, "sslmode=disable")
	if err != nil {
		panic(err)
	}
	testPool, err = postgres.NewPool(startCtx, dsn)
	if err != nil {
		panic(err)
	}
	defer testPool.Close()

	if err := postgres.RunMigrations(startCtx, testPool); err != nil {
		panic(err)
	}
	if err := seedFixtures(startCtx); err != nil {
		panic(err)
	}

	cfg := &Config{
		DatabaseURL:     dsn,
		APIKeyPepper:    testPepper,
		SellerGroup:     "seller",
		TimeZone:        "UTC",
		Currency:        "PLN",
		PageSize:        20,
		PaymentTermDays: 5,
		Media: MediaConfig{
			Root:      "testdata-media",
			BaseURL:   "/media",
			Serve:     true,
			MaxUpload: 1 << 20,
		},
		Mail: MailConfig{Backend: "console", Timeout: time.Second},
		CORS: CORSConfig{Origins: []string{"*"}},
	}
	defer func() { _ = os.RemoveAll(cfg.Media.Root) }()

	d := &deps{
		pool:     testPool,
		loc:      time.UTC,
		meter:    noop.NewMeterProvider().Meter("test"),
		notifier: notify.NewConsoleMailer(zap.NewNop()),
	}
	a, err := newAPI(ctx, cfg, d)
	if err != nil {
		panic(err)
	}
	a.health.Start(ctx, time.Second)
	a.health.SetReady(true)
	defer a.health.Stop()

	srv := httptest.NewServer(a.handler)
	defer srv.Close()
	baseURL = srv.URL

	return m.Run()
}

func seedFixtures(ctx context.Context) error {
	s := postgres.NewSeeder(testPool)
	users := postgres.NewUserRepository(testPool)

	sellerID, err := s.UpsertUser(ctx, "seller", "seller@example.com", "", "")
	if err != nil {
		return err
	}
	customerID, err := s.UpsertUser(ctx, "customer", "customer@example.com", "Jan", "Kowalski")
	if err != nil {
		return err
	}
	if _, err := users.EnsureGroup(ctx, "seller"); err != nil {
		return err
	}
	if err := users.AddMember(ctx, "seller", "seller"); err != nil {
		return err
	}
	pepper := []byte(testPepper)
	if err := s.UpsertAPIKey(ctx, "seller-key", auth.HashAPIKey(pepper, testSellerKey), sellerID, "seller"); err != nil {
		return err
	}
	if err := s.UpsertAPIKey(ctx, "customer-key", auth.HashAPIKey(pepper, testCustomerKey), customerID, "customer"); err != nil {
		return err
	}

	categoryID, err = s.UpsertCategory(ctx, "Tools")
	if err != nil {
		return err
	}
	widgetID, err = s.UpsertProduct(ctx, categoryID, "Widget", "Small widget", decimal.RequireFromString("10.00"))
	if err != nil {
		return err
	}
	gadgetID, err = s.UpsertProduct(ctx, categoryID, "Gadget", "Useful gadget", decimal.RequireFromString("2.50"))
	return err
}

// HTTP helpers.

func do(t *testing.T, method, path, apiKey string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, baseURL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Api-Key "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func placeOrder(t *testing.T, lines ...orderLineRequest) orderResponse {
	t.Helper()

	resp := do(t, http.MethodPost, "/api/orders", testCustomerKey, orderRequest{
		ShippingAddress: "ul. Testowa 1, Warszawa",
		Items:           lines,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeJSON[orderResponse](t, resp)
}

func TestProbes(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			resp := do(t, http.MethodGet, path, "", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "ok", decodeJSON[healthResponse](t, resp).Status)
		})
	}
	t.Run("RevokedKey", func(t *testing.T) {
		for _, path := range []string{"/livez", "/readyz", "/api/health"} {
			resp := do(t, http.MethodGet, path, "revoked-key", nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		}
	})
}

func TestHealthReport(t *testing.T) {
	resp := do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rep := decodeJSON[reportResponse](t, resp)
	assert.Equal(t, "ok", rep.Status)
	assert.True(t, rep.Database)
	assert.Nil(t, rep.Redis)
}

func TestRequestID(t *testing.T) {
	t.Run("Generated", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/livez", "", nil)
		assert.NotEmpty(t, resp.Header.Get(httpmiddleware.HeaderRequestID))
	})
	t.Run("Echoed", func(t *testing.T) {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, baseURL+"/livez", nil)
		require.NoError(t, err)
		req.Header.Set(httpmiddleware.HeaderRequestID, "custom-request-id-12345")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "custom-request-id-12345", resp.Header.Get(httpmiddleware.HeaderRequestID))
	})
}

func TestCORSPreflight(t *testing.T) {
	req, err := http.NewRequestWithContext(t.Context(), http.MethodOptions, baseURL+"/api/products", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestListProducts(t *testing.T) {
	resp := do(t, http.MethodGet, "/api/products?ordering=price", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page := decodeJSON[productPage](t, resp)
	require.GreaterOrEqual(t, page.Count, 2)
	require.Len(t, page.Results, page.Count)
	for i := 1; i < len(page.Results); i++ {
		prev := decimal.RequireFromString(page.Results[i-1].Price)
		cur := decimal.RequireFromString(page.Results[i].Price)
		assert.True(t, prev.LessThanOrEqual(cur), "results must be sorted by price")
	}
}

func TestProductLifecycle(t *testing.T) {
	body := map[string]any{
		"name":        "Hammer",
		"description": "Steel hammer",
		"price":       "25.99",
		"category":    categoryID,
	}

	t.Run("AnonymousCannotCreate", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/api/products", "", body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
	t.Run("CustomerCannotCreate", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/api/products", testCustomerKey, body)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	resp := do(t, http.MethodPost, "/api/products", testSellerKey, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON[productResponse](t, resp)
	assert.Equal(t, "Hammer", created.Name)
	assert.Equal(t, "25.99", created.Price)

	path := "/api/products/" + strconv.FormatInt(created.ID, 10)
	resp = do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, decodeJSON[productResponse](t, resp).ID)

	resp = do(t, http.MethodDelete, path, testSellerKey, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlaceOrder(t *testing.T) {
	t.Run("Anonymous", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/api/orders", "", orderRequest{
			ShippingAddress: "Somewhere",
			Items:           []orderLineRequest{{Product: widgetID, Quantity: 1}},
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
	t.Run("InvalidKey", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/api/orders", "wrong-key", orderRequest{
			ShippingAddress: "Somewhere",
			Items:           []orderLineRequest{{Product: widgetID, Quantity: 1}},
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
	t.Run("EmptyItems", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/api/orders", testCustomerKey, orderRequest{
			ShippingAddress: "Somewhere",
			Items:           []orderLineRequest{},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("UnknownProduct", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/api/orders", testCustomerKey, orderRequest{
			ShippingAddress: "Somewhere",
			Items:           []orderLineRequest{{Product: 999999, Quantity: 1}},
		})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, http.StatusUnprocessableEntity, decodeJSON[errorResponse](t, resp).Code)
	})
	t.Run("Totals", func(t *testing.T) {
		o := placeOrder(t,
			orderLineRequest{Product: widgetID, Quantity: 2},
			orderLineRequest{Product: gadgetID, Quantity: 3},
		)
		assert.NotZero(t, o.ID)
		assert.Equal(t, "27.50", o.TotalPrice)
		assert.False(t, o.IsPaid)
		require.Len(t, o.Items, 2)

		due, err := time.Parse("2006-01-02", o.PaymentDueDate)
		require.NoError(t, err)
		today := time.Now().UTC().Truncate(24 * time.Hour)
		assert.Equal(t, today.AddDate(0, 0, 5), due)
	})
}

func TestOrderLedger(t *testing.T) {
	o := placeOrder(t, orderLineRequest{Product: widgetID, Quantity: 1})
	orderPath := "/api/orders/" + strconv.FormatInt(o.ID, 10)

	t.Run("CustomerCannotEditItems", func(t *testing.T) {
		resp := do(t, http.MethodPost, orderPath+"/items", testCustomerKey,
			orderLineRequest{Product: gadgetID, Quantity: 1})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	resp := do(t, http.MethodPost, orderPath+"/items", testSellerKey,
		orderLineRequest{Product: gadgetID, Quantity: 4})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "20.00", decodeJSON[orderResponse](t, resp).TotalPrice)

	resp = do(t, http.MethodPost, orderPath+"/items", testSellerKey,
		orderLineRequest{Product: gadgetID, Quantity: 1})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	itemPath := orderPath + "/items/" + strconv.FormatInt(widgetID, 10)
	resp = do(t, http.MethodPatch, itemPath, testSellerKey, map[string]int{"quantity": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "40.00", decodeJSON[orderResponse](t, resp).TotalPrice)

	resp = do(t, http.MethodDelete, itemPath, testSellerKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10.00", decodeJSON[orderResponse](t, resp).TotalPrice)

	resp = do(t, http.MethodPost, orderPath+"/pay", testSellerKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeJSON[orderResponse](t, resp).IsPaid)

	resp = do(t, http.MethodGet, orderPath, testCustomerKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeJSON[orderResponse](t, resp)
	assert.True(t, got.IsPaid)
	assert.Equal(t, "10.00", got.TotalPrice)
}

func TestTopProducts(t *testing.T) {
	placeOrder(t, orderLineRequest{Product: gadgetID, Quantity: 50})

	today := time.Now().UTC().Format("2006-01-02")
	path := "/api/stats/top-products?date_from=" + today + "&date_to=" + today

	t.Run("CustomerForbidden", func(t *testing.T) {
		resp := do(t, http.MethodGet, path, testCustomerKey, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
	t.Run("MissingRange", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/api/stats/top-products", testSellerKey, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	resp := do(t, http.MethodGet, path, testSellerKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var top []struct {
		ProductID    int64 `json:"product_id"`
		UnitsOrdered int64 `json:"units_ordered"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&top))
	require.NotEmpty(t, top)
	assert.Equal(t, gadgetID, top[0].ProductID)
}

func TestTriggerPaymentReminders(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/tasks/payment-reminders", testCustomerKey, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, http.MethodPost, "/api/tasks/payment-reminders", testSellerKey, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}
