// Package offer resolves the post-purchase upsell for a completed purchase and
// prepares the changeset a shopper may accept.
package offer

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/changeset"
)

var (
	// ErrOfferUnavailable is returned when the offer product cannot be
	// presented (missing from the catalog or without variants).
	ErrOfferUnavailable = errors.New("offer unavailable")
	// ErrReferenceMismatch is returned when a changeset is requested for a
	// purchase other than the one of the authenticated checkout session.
	ErrReferenceMismatch = errors.New("reference id does not match checkout session")
	// ErrNoOffer is returned when a changeset is requested for a purchase that
	// has no eligible offer.
	ErrNoOffer = errors.New("no offer for purchase")
)

// ResolvedOffer is a funnel combined with live catalog data. It is recomputed
// for every request.
type ResolvedOffer struct {
	FunnelID        int64
	ProductID       string
	ProductTitle    string
	Description     string
	FeaturedImage   string
	Discount        decimal.Decimal
	OriginalPrice   decimal.Decimal
	DiscountedPrice decimal.Decimal
	Variants        []catalog.Variant
	// Changes holds a single add_variant template. Variant and quantity may
	// be replaced by the shopper's selection before signing.
	Changes []changeset.Change
}

// Variant returns the offer variant with the given id.
func (o *ResolvedOffer) Variant(id int64) (catalog.Variant, bool) {
	for _, v := range o.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return catalog.Variant{}, false
}

// SelectionError reports a shopper selection that cannot be signed.
type SelectionError struct {
	VariantID int64
	Reason    string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("invalid selection for variant %d: %s", e.VariantID, e.Reason)
}
