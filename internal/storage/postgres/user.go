package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/customer"
)

const (
	getUserSQL        = `SELECT id, username, email, first_name, last_name FROM users WHERE id = $1`
	updateUserNameSQL = `UPDATE users SET first_name = $2, last_name = $3 WHERE id = $1`
	ensureGroupSQL    = `INSERT INTO groups (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	addMemberSQL      = `INSERT INTO user_groups (user_id, group_id)
		SELECT u.id, g.id FROM users u, groups g WHERE u.username = $1 AND g.name = $2
		ON CONFLICT DO NOTHING`
	userExistsSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`
)

var (
	_ customer.Repository      = (*UserRepository)(nil)
	_ customer.GroupRepository = (*UserRepository)(nil)
)

// UserRepository implements customer.Repository and customer.GroupRepository
// backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns a single user.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*customer.User, error) {
	rows, err := r.pool.Query(ctx, getUserSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (customer.User, error) {
		var u customer.User
		err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName)
		return u, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

// UpdateName writes the first and last name of a user.
func (r *UserRepository) UpdateName(ctx context.Context, id int64, first, last string) error {
	tag, err := r.pool.Exec(ctx, updateUserNameSQL, id, first, last)
	if err != nil {
		return fmt.Errorf("updating name of user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// EnsureGroup creates the group if it does not exist.
func (r *UserRepository) EnsureGroup(ctx context.Context, name string) (bool, error) {
	tag, err := r.pool.Exec(ctx, ensureGroupSQL, name)
	if err != nil {
		return false, fmt.Errorf("ensuring group %q: %w", name, err)
	}
	return tag.RowsAffected() == 1, nil
}

// AddMember adds username to group. Existing memberships are kept.
func (r *UserRepository) AddMember(ctx context.Context, group, username string) error {
	tag, err := r.pool.Exec(ctx, addMemberSQL, username, group)
	if err != nil {
		return fmt.Errorf("adding %q to group %q: %w", username, group, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, userExistsSQL, username).Scan(&exists); err != nil {
		return fmt.Errorf("checking user %q: %w", username, err)
	}
	if !exists {
		return customer.ErrNotFound
	}
	return nil
}
