package statistic

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
)

// DefaultClaimTTL is how long a recorded acceptance blocks duplicates.
const DefaultClaimTTL = 7 * 24 * time.Hour

// Recorder appends revenue and discount records for accepted offers.
type Recorder struct {
	stats   Repository
	funnels funnel.Repository
	idem    IdempotencyStore
	ttl     time.Duration
	now     func() time.Time
}

// NewRecorder creates a Recorder. idem may be nil, in which case duplicates
// are not detected.
func NewRecorder(stats Repository, funnels funnel.Repository, idem IdempotencyStore) *Recorder {
	return &Recorder{
		stats:   stats,
		funnels: funnels,
		idem:    idem,
		ttl:     DefaultClaimTTL,
		now:     time.Now,
	}
}

// WithClaimTTL overrides DefaultClaimTTL.
func (r *Recorder) WithClaimTTL(ttl time.Duration) *Recorder {
	if ttl > 0 {
		r.ttl = ttl
	}
	return r
}

// ClaimKey is the idempotency key of an acceptance.
func ClaimKey(shop, referenceID string, funnelID int64) string {
	return fmt.Sprintf("stat:%s:%s:%d", shop, referenceID, funnelID)
}

// Record validates rec and appends it. The funnel must belong to rec.Shop.
// When rec carries a reference id and an idempotency store is configured, a
// second record for the same purchase and funnel returns ErrDuplicate.
func (r *Recorder) Record(ctx context.Context, rec *Record) error {
	if rec.Revenue.IsNegative() || rec.Discount.IsNegative() {
		return ErrInvalidAmount
	}
	if _, err := r.funnels.GetByID(ctx, rec.Shop, rec.FunnelID); err != nil {
		return errors.Wrap(err, "get funnel")
	}

	rec.Revenue = rec.Revenue.Round(2)
	rec.Discount = rec.Discount.RoundFloor(2)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}

	var key string
	if r.idem != nil && rec.ReferenceID != "" {
		key = ClaimKey(rec.Shop, rec.ReferenceID, rec.FunnelID)
		ok, err := r.idem.Claim(ctx, key, r.ttl)
		if err != nil {
			return errors.Wrap(err, "claim idempotency key")
		}
		if !ok {
			return ErrDuplicate
		}
	}

	if err := r.stats.Create(ctx, rec); err != nil {
		if key != "" {
			if relErr := r.idem.Release(ctx, key); relErr != nil {
				zctx.From(ctx).Warn("Release idempotency key",
					zap.String("key", key),
					zap.Error(relErr),
				)
			}
		}
		return errors.Wrap(err, "create statistic")
	}
	return nil
}

// Totals returns the aggregate of every record of shop.
func (r *Recorder) Totals(ctx context.Context, shop string) (*Totals, error) {
	t, err := r.stats.Totals(ctx, shop)
	if err != nil {
		return nil, errors.Wrap(err, "get totals")
	}
	return t, nil
}
