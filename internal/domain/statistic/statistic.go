package statistic

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicate is returned when the accepted offer of a purchase was
	// already recorded.
	ErrDuplicate = errors.New("statistic already recorded")
	// ErrInvalidAmount is returned for a negative revenue or discount.
	ErrInvalidAmount = errors.New("revenue and discount must not be negative")
)

// Record is a single accepted offer.
type Record struct {
	ID          int64
	Shop        string
	FunnelID    int64
	ReferenceID string
	Revenue     decimal.Decimal
	Discount    decimal.Decimal
	CreatedAt   time.Time
}

// Totals aggregates the records of a shop.
type Totals struct {
	Orders   int64
	Revenue  decimal.Decimal
	Discount decimal.Decimal
}

// Repository is the append-only statistics store.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	// Totals returns zero values when the shop has no records.
	Totals(ctx context.Context, shop string) (*Totals, error)
}

// IdempotencyStore guards against recording the same acceptance twice.
type IdempotencyStore interface {
	// Claim marks key as taken for ttl. It reports false if the key was
	// already claimed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
