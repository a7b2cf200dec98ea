package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonderwork/funnel-upsell/internal/domain/statistic"
)

const (
	createStatisticSQL = `INSERT INTO statistics (shop, funnel_id, reference_id, revenue, discount, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		RETURNING id`

	statisticTotalsSQL = `SELECT COUNT(*), COALESCE(SUM(revenue), 0), COALESCE(SUM(discount), 0)
		FROM statistics WHERE shop = $1`
)

var _ statistic.Repository = (*StatisticRepository)(nil)

// StatisticRepository implements statistic.Repository backed by PostgreSQL.
type StatisticRepository struct {
	pool *pgxpool.Pool
}

// NewStatisticRepository returns a StatisticRepository that uses the given pool.
func NewStatisticRepository(pool *pgxpool.Pool) *StatisticRepository {
	return &StatisticRepository{pool: pool}
}

// Create appends a record and sets its id.
func (r *StatisticRepository) Create(ctx context.Context, rec *statistic.Record) error {
	err := r.pool.QueryRow(ctx, createStatisticSQL,
		rec.Shop, rec.FunnelID, rec.ReferenceID, rec.Revenue, rec.Discount, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("creating statistic for funnel %d: %w", rec.FunnelID, err)
	}
	return nil
}

// Totals sums the records of shop.
func (r *StatisticRepository) Totals(ctx context.Context, shop string) (*statistic.Totals, error) {
	var t statistic.Totals
	err := r.pool.QueryRow(ctx, statisticTotalsSQL, shop).Scan(&t.Orders, &t.Revenue, &t.Discount)
	if err != nil {
		return nil, fmt.Errorf("summing statistics: %w", err)
	}
	return &t, nil
}
