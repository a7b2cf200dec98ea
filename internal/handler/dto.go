package handler

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/changeset"
	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
	"github.com/wonderwork/funnel-upsell/internal/domain/offer"
	"github.com/wonderwork/funnel-upsell/internal/domain/statistic"
)

// flexID is a numeric id that the extension may send as a number, a numeric
// string or a global id.
type flexID int64

func (id *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(catalog.LegacyID(s), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "parse id %q", s)
	}
	*id = flexID(n)
	return nil
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// Checkout requests.

type changeRequest struct {
	Type      string `json:"type"`
	VariantID flexID `json:"variantId" validate:"required"`
	Quantity  int    `json:"quantity"`
}

type signRequest struct {
	ReferenceID string          `json:"referenceId"`
	Sub         string          `json:"sub"`
	Changes     []changeRequest `json:"changes" validate:"required,len=1,dive"`
}

func (r *signRequest) reference() string {
	if r.ReferenceID != "" {
		return r.ReferenceID
	}
	return r.Sub
}

func (r *signRequest) changes() []changeset.Change {
	out := make([]changeset.Change, len(r.Changes))
	for i, c := range r.Changes {
		out[i] = changeset.Change{
			Type:      c.Type,
			VariantID: int64(c.VariantID),
			Quantity:  c.Quantity,
		}
	}
	return out
}

type statisticRequest struct {
	FunnelID    flexID          `json:"funnelId" validate:"gt=0"`
	Revenue     decimal.Decimal `json:"revenue"`
	Discount    decimal.Decimal `json:"discount"`
	ReferenceID string          `json:"referenceId" validate:"max=255"`
}

// Checkout responses.

type imageDTO struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

type variantDTO struct {
	ID                int64     `json:"id"`
	Title             string    `json:"title"`
	DisplayName       string    `json:"displayName"`
	Price             string    `json:"price"`
	AvailableForSale  bool      `json:"availableForSale"`
	InventoryQuantity int       `json:"inventoryQuantity"`
	Image             *imageDTO `json:"image,omitempty"`
}

type offerDTO struct {
	ID              int64              `json:"id"`
	ProductID       string             `json:"productId"`
	ProductTitle    string             `json:"productTitle"`
	Description     string             `json:"description"`
	FeaturedImage   string             `json:"featuredImage,omitempty"`
	Discount        json.Number        `json:"discount"`
	OriginalPrice   string             `json:"originalPrice"`
	DiscountedPrice string             `json:"discountedPrice"`
	Variants        []variantDTO       `json:"variants"`
	Changes         []changeset.Change `json:"changes"`
}

type offerResponse struct {
	Offer *offerDTO `json:"offer"`
}

func newOfferDTO(o *offer.ResolvedOffer) *offerDTO {
	variants := make([]variantDTO, len(o.Variants))
	for i, v := range o.Variants {
		variants[i] = variantDTO{
			ID:                v.ID,
			Title:             v.Title,
			DisplayName:       v.DisplayName,
			Price:             v.Price.StringFixed(2),
			AvailableForSale:  v.AvailableForSale,
			InventoryQuantity: v.InventoryQuantity,
		}
		if v.Image.URL != "" {
			variants[i].Image = &imageDTO{
				URL:     v.Image.URL,
				AltText: v.Image.AltText,
				Width:   v.Image.Width,
				Height:  v.Image.Height,
			}
		}
	}
	return &offerDTO{
		ID:              o.FunnelID,
		ProductID:       o.ProductID,
		ProductTitle:    o.ProductTitle,
		Description:     o.Description,
		FeaturedImage:   o.FeaturedImage,
		Discount:        json.Number(o.Discount.String()),
		OriginalPrice:   o.OriginalPrice.StringFixed(2),
		DiscountedPrice: o.DiscountedPrice.StringFixed(2),
		Variants:        variants,
		Changes:         o.Changes,
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// Admin requests.

type funnelRequest struct {
	Title            string          `json:"title" validate:"required,max=255"`
	TriggerProductID string          `json:"triggerProductId" validate:"required"`
	OfferProductID   string          `json:"offerProductId" validate:"required"`
	Discount         decimal.Decimal `json:"discount"`
}

// Admin responses.

type funnelDTO struct {
	ID                  int64       `json:"id"`
	Title               string      `json:"title"`
	TriggerProductID    string      `json:"triggerProductId"`
	OfferProductID      string      `json:"offerProductId"`
	OfferProductPrice   json.Number `json:"offerProductPrice"`
	Discount            json.Number `json:"discount"`
	TriggerProductTitle string      `json:"triggerProductTitle,omitempty"`
	TriggerProductImage string      `json:"triggerProductImage,omitempty"`
	OfferProductTitle   string      `json:"offerProductTitle,omitempty"`
	OfferProductImage   string      `json:"offerProductImage,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

func newFunnelDTO(f *funnel.Funnel) funnelDTO {
	return funnelDTO{
		ID:                f.ID,
		Title:             f.Title,
		TriggerProductID:  f.TriggerProductID,
		OfferProductID:    f.OfferProductID,
		OfferProductPrice: money(f.OfferProductPrice),
		Discount:          json.Number(f.Discount.String()),
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.UpdatedAt,
	}
}

type funnelPageResponse struct {
	Funnels []funnelDTO `json:"funnels"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
}

type statsResponse struct {
	TotalOrders   int64       `json:"totalOrders"`
	TotalRevenue  json.Number `json:"totalRevenue"`
	TotalDiscount json.Number `json:"totalDiscount"`
}

func newStatsResponse(t *statistic.Totals) statsResponse {
	return statsResponse{
		TotalOrders:   t.Orders,
		TotalRevenue:  money(t.Revenue),
		TotalDiscount: money(t.Discount),
	}
}
