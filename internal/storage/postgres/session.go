package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonderwork/funnel-upsell/internal/domain/auth"
)

const (
	getAccessTokenSQL = `SELECT access_token FROM shop_sessions WHERE shop = $1`

	upsertSessionSQL = `INSERT INTO shop_sessions (shop, access_token, scope, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (shop) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			scope = EXCLUDED.scope,
			updated_at = NOW()
		RETURNING updated_at`
)

var _ auth.SessionRepository = (*SessionRepository)(nil)

// SessionRepository stores offline shop sessions in PostgreSQL.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository returns a SessionRepository that uses the given pool.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// AccessToken returns auth.ErrNoSession when shop has no stored session.
func (r *SessionRepository) AccessToken(ctx context.Context, shop string) (string, error) {
	var token string
	if err := r.pool.QueryRow(ctx, getAccessTokenSQL, shop).Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", auth.ErrNoSession
		}
		return "", fmt.Errorf("getting session of %q: %w", shop, err)
	}
	return token, nil
}

// Upsert stores s, replacing any previous session of the shop.
func (r *SessionRepository) Upsert(ctx context.Context, s *auth.ShopSession) error {
	err := r.pool.QueryRow(ctx, upsertSessionSQL, s.Shop, s.AccessToken, s.Scope).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting session of %q: %w", s.Shop, err)
	}
	return nil
}
