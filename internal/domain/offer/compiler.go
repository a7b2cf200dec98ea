package offer

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/changeset"
	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
)

var hundred = decimal.NewFromInt(100)

// Compiler turns a matched funnel into a presentable offer using live catalog
// data.
type Compiler struct {
	catalog catalog.Gateway
}

// NewCompiler creates a Compiler that reads products through gw.
func NewCompiler(gw catalog.Gateway) *Compiler {
	return &Compiler{catalog: gw}
}

// Compile fetches the offer product of f and builds the offer with a single
// add_variant change for the first variant. A product missing from the catalog
// or without variants yields ErrOfferUnavailable.
func (c *Compiler) Compile(ctx context.Context, f *funnel.Funnel, accessToken string) (*ResolvedOffer, error) {
	p, err := c.catalog.Product(ctx, f.Shop, accessToken, f.OfferProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, errors.Wrapf(ErrOfferUnavailable, "product %s", f.OfferProductID)
		}
		return nil, errors.Wrap(err, "fetch offer product")
	}
	if len(p.Variants) == 0 {
		return nil, errors.Wrapf(ErrOfferUnavailable, "product %s has no variants", f.OfferProductID)
	}

	first := p.Variants[0]
	return &ResolvedOffer{
		FunnelID:        f.ID,
		ProductID:       p.ID,
		ProductTitle:    p.Title,
		Description:     p.Description,
		FeaturedImage:   p.FeaturedImage,
		Discount:        f.Discount,
		OriginalPrice:   first.Price,
		DiscountedPrice: DiscountedPrice(first.Price, f.Discount),
		Variants:        p.Variants,
		Changes:         []changeset.Change{NewChange(first.ID, 1, f.Discount)},
	}, nil
}

// DiscountedPrice returns price reduced by percent, rounded half away from zero
// to two decimal places.
func DiscountedPrice(price, percent decimal.Decimal) decimal.Decimal {
	off := price.Mul(percent).Div(hundred)
	return price.Sub(off).Round(2)
}

// NewChange builds an add_variant change carrying a percentage discount.
func NewChange(variantID int64, quantity int, percent decimal.Decimal) changeset.Change {
	return changeset.Change{
		Type:      changeset.ChangeAddVariant,
		VariantID: variantID,
		Quantity:  quantity,
		Discount: &changeset.Discount{
			Value:     percent.InexactFloat64(),
			ValueType: "percentage",
			Title:     fmt.Sprintf("%s%% off", percent.String()),
		},
	}
}

// ValidateSelection checks the shopper's requested change against the offer
// and returns the change to sign. An offer adds exactly one variant line, so
// exactly one change is accepted. Only the variant and quantity are taken
// from the request; the discount always comes from the offer.
func ValidateSelection(o *ResolvedOffer, requested []changeset.Change) ([]changeset.Change, error) {
	switch len(requested) {
	case 0:
		return nil, &SelectionError{Reason: "no changes requested"}
	case 1:
	default:
		return nil, &SelectionError{Reason: fmt.Sprintf("expected a single change, got %d", len(requested))}
	}

	r := requested[0]
	if r.Type != "" && r.Type != changeset.ChangeAddVariant {
		return nil, &SelectionError{VariantID: r.VariantID, Reason: fmt.Sprintf("unsupported change type %q", r.Type)}
	}
	if r.Quantity < 1 {
		return nil, &SelectionError{VariantID: r.VariantID, Reason: "quantity must be at least 1"}
	}

	v, ok := o.Variant(r.VariantID)
	if !ok {
		return nil, &SelectionError{VariantID: r.VariantID, Reason: "variant does not belong to the offer product"}
	}
	if !v.AvailableForSale {
		return nil, &SelectionError{VariantID: r.VariantID, Reason: "variant is not available for sale"}
	}
	// Inventory is only enforced when the catalog reports tracked stock.
	if v.InventoryQuantity > 0 && r.Quantity > v.InventoryQuantity {
		return nil, &SelectionError{
			VariantID: r.VariantID,
			Reason:    fmt.Sprintf("quantity %d exceeds inventory %d", r.Quantity, v.InventoryQuantity),
		}
	}

	return []changeset.Change{NewChange(v.ID, r.Quantity, o.Discount)}, nil
}
