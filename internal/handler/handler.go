// Package handler implements the HTTP API on top of the domain services.
package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/stats"
	"github.com/xenking/storefront/internal/jobs"
)

// CatalogService is the catalog surface used by the API.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	GetCategory(ctx context.Context, id int64) (*catalog.Category, error)
	CreateCategory(ctx context.Context, p *auth.Principal, name string) (*catalog.Category, error)
	UpdateCategory(ctx context.Context, p *auth.Principal, id int64, name string) (*catalog.Category, error)
	DeleteCategory(ctx context.Context, p *auth.Principal, id int64) error
	ListProducts(ctx context.Context, f catalog.ProductFilter, page int) (*catalog.ProductPage, error)
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	CreateProduct(ctx context.Context, p *auth.Principal, in catalog.ProductInput) (*catalog.Product, error)
	UpdateProduct(ctx context.Context, p *auth.Principal, id int64, in catalog.ProductInput) (*catalog.Product, error)
	DeleteProduct(ctx context.Context, p *auth.Principal, id int64) error
	SetProductImage(ctx context.Context, p *auth.Principal, id int64, filename string, r io.Reader) (*catalog.Product, error)
}

// OrderService is the order surface used by the API.
type OrderService interface {
	PlaceOrder(ctx context.Context, p *auth.Principal, req order.PlaceOrderRequest) (*order.Order, error)
	Get(ctx context.Context, p *auth.Principal, orderID int64) (*order.Order, error)
	List(ctx context.Context, p *auth.Principal, page int) (*order.Page, error)
	AddItem(ctx context.Context, p *auth.Principal, orderID int64, line order.LineRequest) (*order.Order, error)
	UpdateItemQuantity(ctx context.Context, p *auth.Principal, orderID, productID int64, quantity int) (*order.Order, error)
	RemoveItem(ctx context.Context, p *auth.Principal, orderID, productID int64) (*order.Order, error)
	MarkPaid(ctx context.Context, p *auth.Principal, orderID int64) (*order.Order, error)
}

// StatsService is the statistics surface used by the API.
type StatsService interface {
	TopProducts(ctx context.Context, p *auth.Principal, q stats.Query) ([]stats.ProductUnits, error)
}

var (
	_ CatalogService = (*catalog.Service)(nil)
	_ OrderService   = (*order.Service)(nil)
	_ StatsService   = (*stats.Service)(nil)
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// MediaBaseURL is prepended to stored image paths in product responses.
	MediaBaseURL string
	// MaxUploadBytes caps product image uploads.
	MaxUploadBytes int64
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

// Handler serves the /api routes.
type Handler struct {
	catalog  CatalogService
	orders   OrderService
	stats    StatsService
	triggers jobs.Queue

	mediaBaseURL   string
	maxUploadBytes int64
	maxBodyBytes   int64
	now            func() time.Time
}

// New constructs a Handler.
func New(cfg Config, catalog CatalogService, orders OrderService, stats StatsService, triggers jobs.Queue) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		catalog:        catalog,
		orders:         orders,
		stats:          stats,
		triggers:       triggers,
		mediaBaseURL:   strings.TrimSuffix(cfg.MediaBaseURL, "/"),
		maxUploadBytes: cfg.MaxUploadBytes,
		maxBodyBytes:   cfg.MaxBodyBytes,
		now:            time.Now,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/categories", h.listCategories)
	mux.HandleFunc("POST /api/categories", h.createCategory)
	mux.HandleFunc("GET /api/categories/{id}", h.getCategory)
	mux.HandleFunc("PUT /api/categories/{id}", h.updateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", h.deleteCategory)

	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("POST /api/products", h.createProduct)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("PUT /api/products/{id}", h.updateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", h.deleteProduct)
	mux.HandleFunc("PUT /api/products/{id}/image", h.uploadProductImage)

	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/orders/{id}/items", h.addOrderItem)
	mux.HandleFunc("PATCH /api/orders/{id}/items/{productID}", h.updateOrderItem)
	mux.HandleFunc("DELETE /api/orders/{id}/items/{productID}", h.removeOrderItem)
	mux.HandleFunc("POST /api/orders/{id}/pay", h.markOrderPaid)

	mux.HandleFunc("GET /api/stats/top-products", h.topProducts)
	mux.HandleFunc("POST /api/tasks/payment-reminders", h.triggerPaymentReminders)
}
