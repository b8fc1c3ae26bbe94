package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	productColumns = `p.id, p.category_id, c.name, p.name, p.description, p.price,
		p.image_path, p.thumbnail_path, p.created_at`
	productFrom = ` FROM products p JOIN categories c ON c.id = p.category_id`

	getProductSQL      = `SELECT ` + productColumns + productFrom + ` WHERE p.id = $1`
	getProductsByIDSQL = `SELECT ` + productColumns + productFrom + ` WHERE p.id = ANY($1)`

	createProductSQL = `INSERT INTO products (category_id, name, description, price)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	updateProductSQL = `UPDATE products SET category_id = $2, name = $3, description = $4, price = $5
		WHERE id = $1`
	setProductImagesSQL = `UPDATE products SET image_path = $2, thumbnail_path = $3 WHERE id = $1`
	deleteProductSQL    = `DELETE FROM products WHERE id = $1`
)

var productOrderColumns = map[catalog.Ordering]string{
	catalog.OrderByName:         "p.name",
	catalog.OrderByPrice:        "p.price",
	catalog.OrderByCategoryName: "c.name",
}

var _ catalog.ProductRepository = (*ProductRepository)(nil)

// ProductRepository implements catalog.ProductRepository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// likePattern builds a case-insensitive substring pattern with LIKE
// metacharacters escaped.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// productWhere renders the WHERE clause for f and its arguments.
func productWhere(f catalog.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.Name != "" {
		add("p.name ILIKE ?", likePattern(f.Name))
	}
	if f.Description != "" {
		add("p.description ILIKE ?", likePattern(f.Description))
	}
	if f.CategoryName != "" {
		add("c.name ILIKE ?", likePattern(f.CategoryName))
	}
	if f.CategoryID != 0 {
		add("p.category_id = ?", f.CategoryID)
	}
	if f.Price != nil {
		add("p.price = ?", *f.Price)
	}
	if f.MinPrice != nil {
		add("p.price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("p.price <= ?", *f.MaxPrice)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func productOrderBy(o catalog.Ordering) string {
	col, ok := productOrderColumns[o.Field()]
	if !ok {
		col = productOrderColumns[catalog.OrderByName]
	}
	dir := " ASC"
	if o.Descending() {
		dir = " DESC"
	}
	return " ORDER BY " + col + dir + ", p.id" + dir
}

// List returns one page of products matching f and the total match count.
func (r *ProductRepository) List(ctx context.Context, f catalog.ProductFilter) ([]catalog.Product, int, error) {
	where, args := productWhere(f)

	var count int
	if err := r.pool.QueryRow(ctx, `SELECT count(*)`+productFrom+where, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	query := `SELECT ` + productColumns + productFrom + where + productOrderBy(f.Ordering)
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	return products, count, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts p and sets its ID and CreatedAt.
func (r *ProductRepository) Create(ctx context.Context, p *catalog.Product) error {
	err := r.pool.QueryRow(ctx, createProductSQL, p.CategoryID, p.Name, p.Description, p.Price).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return &catalog.ValidationError{Field: "category", Message: "category does not exist"}
		}
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

// Update writes the editable fields of p. Image paths are left alone.
func (r *ProductRepository) Update(ctx context.Context, p *catalog.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL, p.ID, p.CategoryID, p.Name, p.Description, p.Price)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return &catalog.ValidationError{Field: "category", Message: "category does not exist"}
		}
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// SetImages stores the image and thumbnail paths of a product.
func (r *ProductRepository) SetImages(ctx context.Context, id int64, image, thumbnail string) error {
	tag, err := r.pool.Exec(ctx, setProductImagesSQL, id, image, thumbnail)
	if err != nil {
		return fmt.Errorf("setting images of product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// Delete removes the product unless order items still reference it.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return catalog.ErrProductInUse
		}
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.CategoryID, &p.CategoryName, &p.Name, &p.Description, &p.Price,
		&p.ImagePath, &p.ThumbnailPath, &p.CreatedAt,
	)
	return p, err
}
