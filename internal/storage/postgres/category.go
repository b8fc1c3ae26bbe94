package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	listCategoriesSQL = `SELECT id, name FROM categories ORDER BY name, id`
	getCategorySQL    = `SELECT id, name FROM categories WHERE id = $1`
	createCategorySQL = `INSERT INTO categories (name) VALUES ($1) RETURNING id`
	updateCategorySQL = `UPDATE categories SET name = $2 WHERE id = $1`
	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
)

var _ catalog.CategoryRepository = (*CategoryRepository)(nil)

// CategoryRepository implements catalog.CategoryRepository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// List returns all categories ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]catalog.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, scanCategory)
}

// GetByID returns a single category.
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*catalog.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting category %d: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("getting category %d: %w", id, err)
	}
	return &c, nil
}

// Create inserts c and sets its ID.
func (r *CategoryRepository) Create(ctx context.Context, c *catalog.Category) error {
	if err := r.pool.QueryRow(ctx, createCategorySQL, c.Name).Scan(&c.ID); err != nil {
		if pgCode(err) == codeUniqueViolation {
			return catalog.ErrCategoryExists
		}
		return fmt.Errorf("creating category %q: %w", c.Name, err)
	}
	return nil
}

// Update renames the category.
func (r *CategoryRepository) Update(ctx context.Context, c *catalog.Category) error {
	tag, err := r.pool.Exec(ctx, updateCategorySQL, c.ID, c.Name)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return catalog.ErrCategoryExists
		}
		return fmt.Errorf("updating category %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

// Delete removes the category unless products still reference it.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return catalog.ErrCategoryInUse
		}
		return fmt.Errorf("deleting category %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

func scanCategory(row pgx.CollectableRow) (catalog.Category, error) {
	var c catalog.Category
	err := row.Scan(&c.ID, &c.Name)
	return c, err
}
