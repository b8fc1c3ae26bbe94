package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/stats"
)

const topProductsSQL = `SELECT p.id, p.name, SUM(i.quantity)::bigint AS units
	FROM order_items i
	JOIN orders o ON o.id = i.order_id
	JOIN products p ON p.id = i.product_id
	WHERE (o.created_at AT TIME ZONE $1)::date BETWEEN $2 AND $3
	GROUP BY p.id, p.name
	ORDER BY units DESC, p.id ASC
	LIMIT $4`

var _ stats.Repository = (*StatsRepository)(nil)

// StatsRepository implements stats.Repository backed by PostgreSQL.
type StatsRepository struct {
	pool *pgxpool.Pool
	tz   string
}

// NewStatsRepository returns a StatsRepository that buckets order creation
// times into dates of loc.
func NewStatsRepository(pool *pgxpool.Pool, loc *time.Location) *StatsRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsRepository{pool: pool, tz: loc.String()}
}

// TopProducts returns the products with the most units ordered in q.
func (r *StatsRepository) TopProducts(ctx context.Context, q stats.Query) ([]stats.ProductUnits, error) {
	rows, err := r.pool.Query(ctx, topProductsSQL, r.tz, q.From, q.To, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("querying top products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (stats.ProductUnits, error) {
		var pu stats.ProductUnits
		err := row.Scan(&pu.ProductID, &pu.ProductName, &pu.UnitsOrdered)
		return pu, err
	})
}
