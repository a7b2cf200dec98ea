package handler

import (
	"net/http"
	"sort"

	"github.com/go-faster/jx"

	"github.com/wonderwork/funnel-upsell/internal/domain/changeset"
)

// jxEncoder is a response body written with the streaming encoder.
type jxEncoder interface {
	Encode(e *jx.Encoder)
}

func writeJX(w http.ResponseWriter, status int, v jxEncoder) {
	var e jx.Encoder
	v.Encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func (r ErrorResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(r.Code)
	e.FieldStart("message")
	e.Str(r.Message)
	if len(r.Fields) > 0 {
		keys := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		e.FieldStart("fields")
		e.ObjStart()
		for _, k := range keys {
			e.FieldStart(k)
			e.Str(r.Fields[k])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func (r tokenResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("token")
	e.Str(r.Token)
	e.ObjEnd()
}

func (r successResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(r.Success)
	e.ObjEnd()
}

func (r offerResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("offer")
	if r.Offer == nil {
		e.Null()
	} else {
		r.Offer.Encode(e)
	}
	e.ObjEnd()
}

func (o *offerDTO) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("productId")
	e.Str(o.ProductID)
	e.FieldStart("productTitle")
	e.Str(o.ProductTitle)
	e.FieldStart("description")
	e.Str(o.Description)
	if o.FeaturedImage != "" {
		e.FieldStart("featuredImage")
		e.Str(o.FeaturedImage)
	}
	e.FieldStart("discount")
	e.Raw([]byte(o.Discount))
	e.FieldStart("originalPrice")
	e.Str(o.OriginalPrice)
	e.FieldStart("discountedPrice")
	e.Str(o.DiscountedPrice)

	e.FieldStart("variants")
	e.ArrStart()
	for i := range o.Variants {
		o.Variants[i].Encode(e)
	}
	e.ArrEnd()

	e.FieldStart("changes")
	e.ArrStart()
	for _, c := range o.Changes {
		encodeChange(e, c)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func (v *variantDTO) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(v.ID)
	e.FieldStart("title")
	e.Str(v.Title)
	e.FieldStart("displayName")
	e.Str(v.DisplayName)
	e.FieldStart("price")
	e.Str(v.Price)
	e.FieldStart("availableForSale")
	e.Bool(v.AvailableForSale)
	e.FieldStart("inventoryQuantity")
	e.Int(v.InventoryQuantity)
	if img := v.Image; img != nil {
		e.FieldStart("image")
		e.ObjStart()
		e.FieldStart("url")
		e.Str(img.URL)
		if img.AltText != "" {
			e.FieldStart("altText")
			e.Str(img.AltText)
		}
		if img.Width != 0 {
			e.FieldStart("width")
			e.Int(img.Width)
		}
		if img.Height != 0 {
			e.FieldStart("height")
			e.Int(img.Height)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeChange(e *jx.Encoder, c changeset.Change) {
	e.ObjStart()
	e.FieldStart("type")
	e.Str(c.Type)
	e.FieldStart("variantId")
	e.Int64(c.VariantID)
	e.FieldStart("quantity")
	e.Int(c.Quantity)
	if d := c.Discount; d != nil {
		e.FieldStart("discount")
		e.ObjStart()
		e.FieldStart("value")
		e.Float64(d.Value)
		e.FieldStart("valueType")
		e.Str(d.ValueType)
		e.FieldStart("title")
		e.Str(d.Title)
		e.ObjEnd()
	}
	e.ObjEnd()
}
