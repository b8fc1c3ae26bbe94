package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	upsertUserSQL = `INSERT INTO users (username, email, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE
		SET email = EXCLUDED.email, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name
		RETURNING id`
	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, user_id, name, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE
		SET key_hash = EXCLUDED.key_hash, user_id = EXCLUDED.user_id, name = EXCLUDED.name, active = TRUE`
	upsertCategorySQL = `INSERT INTO categories (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`
	updateSeedProductSQL = `UPDATE products SET description = $3, price = $4
		WHERE category_id = $1 AND name = $2 RETURNING id`
)

// Seeder writes fixture data idempotently.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// UpsertUser creates or updates a user by username and returns its ID.
func (s *Seeder) UpsertUser(ctx context.Context, username, email, first, last string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, upsertUserSQL, username, email, first, last).Scan(&id); err != nil {
		return 0, fmt.Errorf("upserting user %q: %w", username, err)
	}
	return id, nil
}

// UpsertAPIKey stores an active API key hash for a user.
func (s *Seeder) UpsertAPIKey(ctx context.Context, id, keyHash string, userID int64, name string) error {
	if _, err := s.pool.Exec(ctx, upsertAPIKeySQL, id, keyHash, userID, name); err != nil {
		return fmt.Errorf("upserting api key %q: %w", id, err)
	}
	return nil
}

// UpsertCategory creates a category if missing and returns its ID.
func (s *Seeder) UpsertCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, upsertCategorySQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upserting category %q: %w", name, err)
	}
	return id, nil
}

// UpsertProduct creates or updates a product identified by category and name.
func (s *Seeder) UpsertProduct(ctx context.Context, categoryID int64, name, description string, price decimal.Decimal) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, updateSeedProductSQL, categoryID, name, description, price).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("updating product %q: %w", name, err)
	}
	var createdAt time.Time
	if err := s.pool.QueryRow(ctx, createProductSQL, categoryID, name, description, price).Scan(&id, &createdAt); err != nil {
		return 0, fmt.Errorf("inserting product %q: %w", name, err)
	}
	return id, nil
}
