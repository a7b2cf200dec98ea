package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
)

const funnelColumns = `id, shop, title, trigger_product_id, offer_product_id,
	offer_product_price, discount, created_at, updated_at`

const (
	getFunnelByIDSQL = `SELECT ` + funnelColumns + `
		FROM funnels WHERE shop = $1 AND id = $2`

	findFunnelByTriggerSQL = `SELECT ` + funnelColumns + `
		FROM funnels WHERE shop = $1 AND trigger_product_id = $2`

	listTriggerProductIDsSQL = `SELECT DISTINCT trigger_product_id FROM funnels`

	listFunnelsByTriggersSQL = `SELECT ` + funnelColumns + `
		FROM funnels WHERE shop = $1 AND trigger_product_id = ANY($2)
		ORDER BY offer_product_price DESC, id ASC`

	countFunnelsSQL = `SELECT COUNT(*) FROM funnels WHERE shop = $1`

	listFunnelsSQL = `SELECT ` + funnelColumns + `
		FROM funnels WHERE shop = $1
		ORDER BY updated_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	createFunnelSQL = `INSERT INTO funnels
		(shop, title, trigger_product_id, offer_product_id, offer_product_price, discount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	updateFunnelSQL = `UPDATE funnels SET
		title = $3, trigger_product_id = $4, offer_product_id = $5,
		offer_product_price = $6, discount = $7, updated_at = NOW()
		WHERE shop = $1 AND id = $2
		RETURNING created_at, updated_at`

	deleteFunnelSQL = `DELETE FROM funnels WHERE shop = $1 AND id = $2`
)

// DefaultPageSize is used by List when no positive limit is given.
const DefaultPageSize = 10

var _ funnel.Repository = (*FunnelRepository)(nil)

// FunnelRepository implements funnel.Repository backed by PostgreSQL.
type FunnelRepository struct {
	pool *pgxpool.Pool
}

// NewFunnelRepository returns a FunnelRepository that uses the given pool.
func NewFunnelRepository(pool *pgxpool.Pool) *FunnelRepository {
	return &FunnelRepository{pool: pool}
}

// GetByID returns funnel.ErrNotFound for ids of other shops.
func (r *FunnelRepository) GetByID(ctx context.Context, shop string, id int64) (*funnel.Funnel, error) {
	return r.one(ctx, getFunnelByIDSQL, shop, id)
}

// FindByTriggerProduct returns the funnel of shop triggered by the product
// global id.
func (r *FunnelRepository) FindByTriggerProduct(ctx context.Context, shop, triggerProductID string) (*funnel.Funnel, error) {
	return r.one(ctx, findFunnelByTriggerSQL, shop, triggerProductID)
}

func (r *FunnelRepository) one(ctx context.Context, query string, args ...any) (*funnel.Funnel, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting funnel: %w", err)
	}

	f, err := pgx.CollectExactlyOneRow(rows, scanFunnel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, funnel.ErrNotFound
		}
		return nil, fmt.Errorf("getting funnel: %w", err)
	}
	return &f, nil
}

// ListTriggerProductIDs returns the legacy numeric ids of all trigger
// products.
func (r *FunnelRepository) ListTriggerProductIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listTriggerProductIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing trigger products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var gid string
		if err := row.Scan(&gid); err != nil {
			return "", err
		}
		return catalog.LegacyID(gid), nil
	})
}

// ListByTriggerProducts returns the funnels of shop triggered by any of the
// given global ids, highest offer price first.
func (r *FunnelRepository) ListByTriggerProducts(ctx context.Context, shop string, triggerProductIDs []string) ([]funnel.Funnel, error) {
	if len(triggerProductIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, listFunnelsByTriggersSQL, shop, triggerProductIDs)
	if err != nil {
		return nil, fmt.Errorf("listing funnels by triggers: %w", err)
	}
	return pgx.CollectRows(rows, scanFunnel)
}

// List returns a page of the shop's funnels, most recently updated first. A
// page past the end is clamped to the last page.
func (r *FunnelRepository) List(ctx context.Context, shop string, page, limit int) (*funnel.Page, error) {
	if limit < 1 {
		limit = DefaultPageSize
	}

	var total int
	if err := r.pool.QueryRow(ctx, countFunnelsSQL, shop).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting funnels: %w", err)
	}

	page = funnel.ClampPage(page, limit, total)
	rows, err := r.pool.Query(ctx, listFunnelsSQL, shop, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("listing funnels: %w", err)
	}
	funnels, err := pgx.CollectRows(rows, scanFunnel)
	if err != nil {
		return nil, fmt.Errorf("listing funnels: %w", err)
	}

	return &funnel.Page{
		Funnels: funnels,
		Total:   total,
		Page:    page,
		Limit:   limit,
	}, nil
}

// Create inserts f and sets its id and timestamps.
func (r *FunnelRepository) Create(ctx context.Context, f *funnel.Funnel) error {
	err := r.pool.QueryRow(ctx, createFunnelSQL,
		f.Shop, f.Title, f.TriggerProductID, f.OfferProductID, f.OfferProductPrice, f.Discount,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return funnel.ErrTriggerInUse
		}
		return fmt.Errorf("creating funnel: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of f within its shop.
func (r *FunnelRepository) Update(ctx context.Context, f *funnel.Funnel) error {
	err := r.pool.QueryRow(ctx, updateFunnelSQL,
		f.Shop, f.ID, f.Title, f.TriggerProductID, f.OfferProductID, f.OfferProductPrice, f.Discount,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return funnel.ErrNotFound
		case isUniqueViolation(err):
			return funnel.ErrTriggerInUse
		}
		return fmt.Errorf("updating funnel %d: %w", f.ID, err)
	}
	return nil
}

// Delete removes the funnel. Recorded statistics are kept.
func (r *FunnelRepository) Delete(ctx context.Context, shop string, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteFunnelSQL, shop, id)
	if err != nil {
		return fmt.Errorf("deleting funnel %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return funnel.ErrNotFound
	}
	return nil
}

func scanFunnel(row pgx.CollectableRow) (funnel.Funnel, error) {
	var f funnel.Funnel
	err := row.Scan(
		&f.ID, &f.Shop, &f.Title, &f.TriggerProductID, &f.OfferProductID,
		&f.OfferProductPrice, &f.Discount, &f.CreatedAt, &f.UpdatedAt,
	)
	return f, err
}
