package catalog

import (
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
)

// DefaultPageSize is used when the service is built with a non-positive page size.
const DefaultPageSize = 20

// ProductInput holds the writable fields of a product.
type ProductInput struct {
	CategoryID  int64
	Name        string
	Description string
	Price       decimal.Decimal
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Count    int
	Page     int
	Products []Product
}

// Service implements catalog reads (public) and writes (sellers only).
type Service struct {
	categories CategoryRepository
	products   ProductRepository
	images     ImageStore
	pageSize   int
}

// NewService creates a catalog Service.
func NewService(categories CategoryRepository, products ProductRepository, images ImageStore, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		categories: categories,
		products:   products,
		images:     images,
		pageSize:   pageSize,
	}
}

// ListCategories returns all categories ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.categories.List(ctx)
}

// GetCategory returns a single category.
func (s *Service) GetCategory(ctx context.Context, id int64) (*Category, error) {
	return s.categories.GetByID(ctx, id)
}

// CreateCategory adds a category with a unique name.
func (s *Service) CreateCategory(ctx context.Context, p *auth.Principal, name string) (*Category, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	name, err := validateName("name", name, CategoryNameMaxLen)
	if err != nil {
		return nil, err
	}

	c := &Category{Name: name}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create category")
	}
	return c, nil
}

// UpdateCategory renames a category.
func (s *Service) UpdateCategory(ctx context.Context, p *auth.Principal, id int64, name string) (*Category, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	name, err := validateName("name", name, CategoryNameMaxLen)
	if err != nil {
		return nil, err
	}

	c := &Category{ID: id, Name: name}
	if err := s.categories.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update category")
	}
	return c, nil
}

// DeleteCategory removes a category. It fails with ErrCategoryInUse while
// any product references it.
func (s *Service) DeleteCategory(ctx context.Context, p *auth.Principal, id int64) error {
	if err := auth.RequireSeller(p); err != nil {
		return err
	}
	if err := s.categories.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete category")
	}
	return nil
}

// ListProducts returns the requested 1-based page of products matching f.
func (s *Service) ListProducts(ctx context.Context, f ProductFilter, page int) (*ProductPage, error) {
	if page < 1 {
		page = 1
	}
	if f.Ordering == "" {
		f.Ordering = OrderByName
	}
	f.Limit = s.pageSize
	f.Offset = (page - 1) * s.pageSize

	products, count, err := s.products.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return &ProductPage{Count: count, Page: page, Products: products}, nil
}

// GetProduct returns a single product.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// CreateProduct adds a product to an existing category.
func (s *Service) CreateProduct(ctx context.Context, p *auth.Principal, in ProductInput) (*Product, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	prod, err := s.buildProduct(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.products.Create(ctx, prod); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return prod, nil
}

// UpdateProduct replaces the writable fields of a product. Existing order
// items keep their snapshotted prices.
func (s *Service) UpdateProduct(ctx context.Context, p *auth.Principal, id int64, in ProductInput) (*Product, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	prod, err := s.buildProduct(ctx, in)
	if err != nil {
		return nil, err
	}
	prod.ID = id
	if err := s.products.Update(ctx, prod); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return s.products.GetByID(ctx, id)
}

// DeleteProduct removes a product and then its image files. It fails with
// ErrProductInUse while any order item references the product.
func (s *Service) DeleteProduct(ctx context.Context, p *auth.Principal, id int64) error {
	if err := auth.RequireSeller(p); err != nil {
		return err
	}
	prod, err := s.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.products.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	s.images.RemoveFiles(ctx, prod.ImagePath, prod.ThumbnailPath)
	return nil
}

// SetProductImage stores a new image for the product and regenerates its
// thumbnail. Files of the replaced image are removed.
func (s *Service) SetProductImage(ctx context.Context, p *auth.Principal, id int64, filename string, r io.Reader) (*Product, error) {
	if err := auth.RequireSeller(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(filename) == "" {
		return nil, &ValidationError{Field: "filename", Message: "this field is required"}
	}
	prod, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	image, thumb, err := s.images.SaveProductImage(ctx, id, filename, r)
	if err != nil {
		return nil, errors.Wrap(err, "save image")
	}
	if err := s.products.SetImages(ctx, id, image, thumb); err != nil {
		s.images.RemoveFiles(ctx, image, thumb)
		return nil, errors.Wrap(err, "set product images")
	}

	// A new file may reuse either old name, e.g. uploading "a_thumb.jpg"
	// after "a.png".
	var stale []string
	for _, old := range []string{prod.ImagePath, prod.ThumbnailPath} {
		if old != "" && old != image && old != thumb {
			stale = append(stale, old)
		}
	}
	s.images.RemoveFiles(ctx, stale...)

	prod.ImagePath = image
	prod.ThumbnailPath = thumb
	return prod, nil
}

func (s *Service) buildProduct(ctx context.Context, in ProductInput) (*Product, error) {
	name, err := validateName("name", in.Name, ProductNameMaxLen)
	if err != nil {
		return nil, err
	}
	if in.Price.IsNegative() {
		return nil, &ValidationError{Field: "price", Message: "price must be non-negative"}
	}
	if in.Price.Exponent() < -2 {
		return nil, &ValidationError{Field: "price", Message: "at most 2 decimal places allowed"}
	}
	if in.Price.GreaterThan(MaxPrice) {
		return nil, &ValidationError{Field: "price", Message: "at most 8 digits before the decimal point allowed"}
	}

	cat, err := s.categories.GetByID(ctx, in.CategoryID)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return nil, &ValidationError{Field: "category", Message: "category does not exist"}
		}
		return nil, errors.Wrap(err, "get category")
	}

	return &Product{
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
		Name:         name,
		Description:  in.Description,
		Price:        in.Price,
	}, nil
}

func validateName(field, v string, maxLen int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", &ValidationError{Field: field, Message: "this field is required"}
	}
	if utf8.RuneCountInString(v) > maxLen {
		return "", &ValidationError{Field: field, Message: "too long"}
	}
	return v, nil
}
