package catalog

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrProductNotFound is returned when the storefront catalog has no product
// with the requested id.
var ErrProductNotFound = errors.New("catalog product not found")

const productGIDPrefix = "gid://shopify/Product/"

// Product is the live catalog view of an offer product.
type Product struct {
	ID            string
	Title         string
	Description   string
	FeaturedImage string
	Variants      []Variant
}

// Variant is a purchasable variant of a Product.
type Variant struct {
	ID                int64
	Title             string
	DisplayName       string
	Price             decimal.Decimal
	AvailableForSale  bool
	InventoryQuantity int
	Image             Image
}

// Image describes a variant image.
type Image struct {
	URL     string
	AltText string
	Width   int
	Height  int
}

// Summary is the short product view used when listing funnels.
type Summary struct {
	ID    string
	Title string
	Image string
	Price decimal.Decimal
}

// Gateway fetches live product data from the storefront catalog.
type Gateway interface {
	// Product returns the product with up to MaxVariants variants.
	Product(ctx context.Context, shop, accessToken, productGID string) (*Product, error)
	// Summary returns title, first image and first variant price.
	Summary(ctx context.Context, shop, accessToken, productGID string) (*Summary, error)
}

const (
	// MaxVariants bounds the variants fetched for a single offer.
	MaxVariants = 100
	// DescriptionLimit bounds the product description length.
	DescriptionLimit = 200
)

// ProductGID converts a legacy numeric product id into the catalog global id.
// Values that already are global ids are returned unchanged.
func ProductGID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return productGIDPrefix + id
}

// IsProductGID reports whether id is a product global id with a numeric
// legacy id.
func IsProductGID(id string) bool {
	legacy, ok := strings.CutPrefix(id, productGIDPrefix)
	if !ok || legacy == "" {
		return false
	}
	for _, c := range legacy {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// LegacyID returns the trailing numeric segment of a global id, e.g.
// "gid://shopify/ProductVariant/42" -> "42".
func LegacyID(gid string) string {
	if i := strings.LastIndexByte(gid, '/'); i >= 0 {
		return gid[i+1:]
	}
	return gid
}
