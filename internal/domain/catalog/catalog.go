// Package catalog manages categories and products.
package catalog

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Field limits mirrored by the schema.
const (
	CategoryNameMaxLen = 120
	ProductNameMaxLen  = 200
)

// MaxPrice is the largest price a NUMERIC(10,2) column holds.
var MaxPrice = decimal.RequireFromString("99999999.99")

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryExists   = errors.New("category with this name already exists")
	// ErrCategoryInUse is returned when deleting a category that still has products.
	ErrCategoryInUse = errors.New("category is referenced by products")
	// ErrProductInUse is returned when deleting a product that still has order items.
	ErrProductInUse = errors.New("product is referenced by order items")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Category groups products.
type Category struct {
	ID   int64
	Name string
}

// Product is a catalog item available for purchase.
type Product struct {
	ID            int64
	CategoryID    int64
	CategoryName  string
	Name          string
	Description   string
	Price         decimal.Decimal
	ImagePath     string
	ThumbnailPath string
	CreatedAt     time.Time
}

// Ordering selects the sort order of product listings.
type Ordering string

const (
	OrderByName         Ordering = "name"
	OrderByPrice        Ordering = "price"
	OrderByCategoryName Ordering = "category_name"
)

// ParseOrdering accepts name, price or category_name with an optional "-"
// prefix for descending order. An empty string selects ordering by name.
func ParseOrdering(s string) (Ordering, error) {
	if s == "" {
		return OrderByName, nil
	}
	switch Ordering(strings.TrimPrefix(s, "-")) {
	case OrderByName, OrderByPrice, OrderByCategoryName:
		return Ordering(s), nil
	}
	return "", &ValidationError{Field: "ordering", Message: "unsupported ordering " + s}
}

// Descending reports whether o carries the "-" prefix.
func (o Ordering) Descending() bool {
	return strings.HasPrefix(string(o), "-")
}

// Field returns o without its direction prefix.
func (o Ordering) Field() Ordering {
	return Ordering(strings.TrimPrefix(string(o), "-"))
}

// ProductFilter narrows product listings. Zero values disable a filter.
type ProductFilter struct {
	Name         string
	Description  string
	CategoryName string
	CategoryID   int64
	Price        *decimal.Decimal
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Ordering     Ordering
	Limit        int
	Offset       int
}

// CategoryRepository persists categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]Category, error)
	GetByID(ctx context.Context, id int64) (*Category, error)
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id int64) error
}

// ProductRepository persists products. List returns the matching page and
// the total number of matches.
type ProductRepository interface {
	List(ctx context.Context, f ProductFilter) ([]Product, int, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	SetImages(ctx context.Context, id int64, image, thumbnail string) error
	Delete(ctx context.Context, id int64) error
}

// ImageStore keeps product image files and their thumbnails.
type ImageStore interface {
	// SaveProductImage stores the image and returns its path and the path of
	// a generated thumbnail. A thumbnail that cannot be generated yields an
	// empty thumbnail path, not an error.
	SaveProductImage(ctx context.Context, productID int64, filename string, r io.Reader) (image, thumbnail string, err error)
	// RemoveFiles deletes the given paths. Missing files are ignored and
	// other failures are logged only.
	RemoveFiles(ctx context.Context, paths ...string)
}
