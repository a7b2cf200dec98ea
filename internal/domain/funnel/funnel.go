package funnel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
)

var (
	// ErrNotFound is returned when no funnel matches the lookup within a shop.
	ErrNotFound = errors.New("funnel not found")
	// ErrTriggerInUse is returned when another funnel of the same shop already
	// claims the trigger product.
	ErrTriggerInUse = errors.New("trigger product already used by another funnel")
)

var hundred = decimal.NewFromInt(100)

// Funnel pairs a trigger product with a discounted offer product.
type Funnel struct {
	ID                int64
	Shop              string
	Title             string
	TriggerProductID  string
	OfferProductID    string
	OfferProductPrice decimal.Decimal
	Discount          decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Page is a single page of funnels ordered by recency.
type Page struct {
	Funnels []Funnel
	Total   int
	Page    int
	Limit   int
}

// Repository is the shop-scoped funnel store. Every method except
// ListTriggerProductIDs filters by shop.
type Repository interface {
	GetByID(ctx context.Context, shop string, id int64) (*Funnel, error)
	FindByTriggerProduct(ctx context.Context, shop, triggerProductID string) (*Funnel, error)
	// ListTriggerProductIDs returns the legacy numeric ids of every trigger
	// product across all shops.
	ListTriggerProductIDs(ctx context.Context) ([]string, error)
	// ListByTriggerProducts returns the shop's funnels triggered by any of the
	// given product global ids, most valuable offer first.
	ListByTriggerProducts(ctx context.Context, shop string, triggerProductIDs []string) ([]Funnel, error)
	List(ctx context.Context, shop string, page, limit int) (*Page, error)
	Create(ctx context.Context, f *Funnel) error
	Update(ctx context.Context, f *Funnel) error
	Delete(ctx context.Context, shop string, id int64) error
}

// ValidationError lists the invalid fields of a funnel keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "invalid funnel: " + strings.Join(parts, "; ")
}

// Validate checks the persisted invariants of a funnel.
func Validate(f *Funnel) error {
	fields := make(map[string]string)
	if strings.TrimSpace(f.Title) == "" {
		fields["title"] = "Name is required"
	}
	if msg := productIDMessage(f.TriggerProductID, "Trigger product"); msg != "" {
		fields["triggerProductId"] = msg
	}
	if msg := productIDMessage(f.OfferProductID, "Offer product"); msg != "" {
		fields["offerProductId"] = msg
	}
	if f.Discount.IsNegative() || f.Discount.GreaterThan(hundred) {
		fields["discount"] = "Discount must be between 0 and 100"
	}
	if f.OfferProductPrice.IsNegative() {
		fields["offerProductPrice"] = "Offer product price must not be negative"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func productIDMessage(id, name string) string {
	switch {
	case catalog.LegacyID(id) == "":
		return name + " is required"
	case !catalog.IsProductGID(id):
		return name + " is not a valid product id"
	}
	return ""
}

// ClampPage returns the page to serve for total rows at the given limit. A page
// past the end is clamped to the last page.
func ClampPage(page, limit, total int) int {
	if page < 1 {
		page = 1
	}
	if limit < 1 || total == 0 {
		return page
	}
	if page*limit > total {
		last := (total + limit - 1) / limit
		if page > last {
			return last
		}
	}
	return page
}
