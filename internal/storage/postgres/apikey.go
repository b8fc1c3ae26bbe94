package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

const getAPIKeyByHashSQL = `SELECT k.id, k.key_hash, k.name, u.id, u.username,
	EXISTS (
		SELECT 1 FROM user_groups ug JOIN groups g ON g.id = ug.group_id
		WHERE ug.user_id = u.id AND g.name = $2
	)
	FROM api_keys k JOIN users u ON u.id = k.user_id
	WHERE k.key_hash = $1 AND k.active`

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash and resolves
// the owning user, marking them as seller when they belong to sellerGroup.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash, sellerGroup string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash, sellerGroup).Scan(
		&info.ID, &info.KeyHash, &info.Name,
		&info.Principal.UserID, &info.Principal.Username, &info.Principal.IsSeller,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &info, nil
}
