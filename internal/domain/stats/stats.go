// Package stats answers sales statistics queries for sellers.
package stats

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
)

// Limits for TopProducts.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ValidationError reports a rejected query parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ProductUnits is the number of units ordered for one product.
type ProductUnits struct {
	ProductID    int64
	ProductName  string
	UnitsOrdered int64
}

// Query selects orders created within [From, To], both inclusive calendar
// dates.
type Query struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Repository runs aggregate queries.
type Repository interface {
	// TopProducts sums ordered quantities per product for orders created on
	// dates within q, ordered by units descending and product id ascending.
	TopProducts(ctx context.Context, q Query) ([]ProductUnits, error)
}

// Service exposes statistics to sellers.
type Service struct {
	repo Repository
}

// NewService creates a stats Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// TopProducts returns the best selling products in the date range. A range
// without orders yields an empty slice.
func (s *Service) TopProducts(ctx context.Context, p *auth.Principal, q Query) ([]ProductUnits, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	if q.From.IsZero() {
		return nil, &ValidationError{Field: "date_from", Message: "this field is required"}
	}
	if q.To.IsZero() {
		return nil, &ValidationError{Field: "date_to", Message: "this field is required"}
	}
	if q.From.After(q.To) {
		return nil, &ValidationError{Field: "date_from", Message: "must not be after date_to"}
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return nil, &ValidationError{Field: "limit", Message: "must be between 1 and 100"}
	}

	top, err := s.repo.TopProducts(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "top products")
	}
	if top == nil {
		top = []ProductUnits{}
	}
	return top, nil
}
