package handler

import (
	"net/http"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/statistic"
)

func TestListFunnels(t *testing.T) {
	t.Run("enriched page", func(t *testing.T) {
		other := newTestFunnel("foreign", "1", "2")
		other.Shop = "other.myshopify.com"
		f := newFixture(t,
			newTestFunnel("first", "1", "2"),
			newTestFunnel("second", "3", "2"),
			newTestFunnel("third", "99", "2"),
			other,
		)

		rec := f.do(http.MethodGet, "/admin/funnels?page=1&limit=2", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		page := decodeBody[funnelPageResponse](t, rec)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 2, page.Limit)
		require.Len(t, page.Funnels, 2)

		first := page.Funnels[0]
		assert.Equal(t, "first", first.Title)
		assert.Equal(t, "Shoes", first.TriggerProductTitle)
		assert.Equal(t, "https://cdn.example.com/1.jpg", first.TriggerProductImage)
		assert.Equal(t, "Socks", first.OfferProductTitle)
		assert.Equal(t, "12.50", first.OfferProductPrice.String())
		assert.Equal(t, "20", first.Discount.String())

		assert.Equal(t, "Laces", page.Funnels[1].TriggerProductTitle)
	})

	t.Run("page past the end is clamped", func(t *testing.T) {
		f := newFixture(t, newTestFunnel("first", "1", "2"), newTestFunnel("second", "3", "2"))

		rec := f.do(http.MethodGet, "/admin/funnels?page=5&limit=1", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		page := decodeBody[funnelPageResponse](t, rec)
		assert.Equal(t, 2, page.Page)
		require.Len(t, page.Funnels, 1)
		assert.Equal(t, "second", page.Funnels[0].Title)
	})

	t.Run("missing product keeps funnel", func(t *testing.T) {
		f := newFixture(t, newTestFunnel("orphan", "404", "405"))

		rec := f.do(http.MethodGet, "/admin/funnels", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		page := decodeBody[funnelPageResponse](t, rec)
		require.Len(t, page.Funnels, 1)
		assert.Empty(t, page.Funnels[0].TriggerProductTitle)
		assert.Empty(t, page.Funnels[0].OfferProductTitle)
	})

	t.Run("no session skips enrichment", func(t *testing.T) {
		f := newFixture(t, newTestFunnel("first", "1", "2"))
		f.sessions.tokens = nil

		rec := f.do(http.MethodGet, "/admin/funnels", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, f.gateway.calls)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		f.funnels.listErr = errors.New("db down")

		rec := f.do(http.MethodGet, "/admin/funnels", adminToken, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetFunnel(t *testing.T) {
	other := newTestFunnel("foreign", "1", "2")
	other.Shop = "other.myshopify.com"
	f := newFixture(t, newTestFunnel("first", "1", "2"), other)

	rec := f.do(http.MethodGet, "/admin/funnels/1", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[funnelDTO](t, rec)
	assert.Equal(t, "first", got.Title)
	assert.Equal(t, "Socks", got.OfferProductTitle)

	for _, path := range []string{"/admin/funnels/2", "/admin/funnels/77", "/admin/funnels/abc"} {
		rec := f.do(http.MethodGet, path, adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestCreateFunnel(t *testing.T) {
	t.Run("created with catalog price", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(http.MethodPost, "/admin/funnels", adminToken,
			`{"title":" Shoes and socks ","triggerProductId":"1","offerProductId":"gid://shopify/Product/2","discount":15}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		got := decodeBody[funnelDTO](t, rec)
		assert.NotZero(t, got.ID)
		assert.Equal(t, "Shoes and socks", got.Title)
		assert.Equal(t, catalog.ProductGID("1"), got.TriggerProductID)
		assert.Equal(t, catalog.ProductGID("2"), got.OfferProductID)
		assert.Equal(t, "12.50", got.OfferProductPrice.String())
		assert.Equal(t, "Socks", got.OfferProductTitle)

		stored, err := f.funnels.GetByID(t.Context(), testShop, got.ID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(15).Equal(stored.Discount))
		assert.True(t, d("12.50").Equal(stored.OfferProductPrice))
	})

	tests := []struct {
		name   string
		body   string
		prep   func(f *fixture)
		status int
		field  string
	}{
		{name: "missing title", body: `{"triggerProductId":"1","offerProductId":"2"}`, status: http.StatusUnprocessableEntity, field: "title"},
		{name: "missing offer", body: `{"title":"x","triggerProductId":"1"}`, status: http.StatusUnprocessableEntity, field: "offerProductId"},
		{name: "discount out of range", body: `{"title":"x","triggerProductId":"1","offerProductId":"2","discount":150}`, status: http.StatusUnprocessableEntity, field: "discount"},
		{name: "blank trigger", body: `{"title":"x","triggerProductId":"  ","offerProductId":"2"}`, status: http.StatusUnprocessableEntity, field: "triggerProductId"},
		{name: "non numeric trigger", body: `{"title":"x","triggerProductId":"shoes","offerProductId":"2"}`, status: http.StatusUnprocessableEntity, field: "triggerProductId"},
		{name: "malformed body", body: `{"title":`, status: http.StatusUnprocessableEntity, field: "body"},
		{name: "unknown offer product", body: `{"title":"x","triggerProductId":"1","offerProductId":"404"}`, status: http.StatusUnprocessableEntity, field: "offerProductId"},
		{
			name:   "trigger in use",
			body:   `{"title":"x","triggerProductId":"1","offerProductId":"3"}`,
			prep:   func(f *fixture) { _ = f.funnels.Create(t.Context(), newTestFunnel("taken", "1", "2")) },
			status: http.StatusConflict,
			field:  "triggerProductId",
		},
		{
			name:   "catalog unavailable",
			body:   `{"title":"x","triggerProductId":"1","offerProductId":"2"}`,
			prep:   func(f *fixture) { f.gateway.err = errors.New("timeout") },
			status: http.StatusBadGateway,
		},
		{
			name:   "shop not installed",
			body:   `{"title":"x","triggerProductId":"1","offerProductId":"2"}`,
			prep:   func(f *fixture) { f.sessions.tokens = nil },
			status: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.prep != nil {
				tt.prep(f)
			}

			rec := f.do(http.MethodPost, "/admin/funnels", adminToken, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			body := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.status, body.Code)
			if tt.field != "" {
				assert.Contains(t, body.Fields, tt.field)
			}
		})
	}
}

func TestUpdateFunnel(t *testing.T) {
	t.Run("updates fields and price", func(t *testing.T) {
		f := newFixture(t, newTestFunnel("first", "1", "2"))

		rec := f.do(http.MethodPut, "/admin/funnels/1", adminToken,
			`{"title":"renamed","triggerProductId":"1","offerProductId":"3","discount":5}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := decodeBody[funnelDTO](t, rec)
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, "renamed", got.Title)
		assert.Equal(t, "4.00", got.OfferProductPrice.String())
		assert.Equal(t, "Laces", got.OfferProductTitle)
	})

	t.Run("trigger taken by sibling", func(t *testing.T) {
		f := newFixture(t, newTestFunnel("first", "1", "2"), newTestFunnel("second", "3", "2"))

		rec := f.do(http.MethodPut, "/admin/funnels/2", adminToken,
			`{"title":"second","triggerProductId":"1","offerProductId":"2"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("foreign funnel", func(t *testing.T) {
		other := newTestFunnel("foreign", "1", "2")
		other.Shop = "other.myshopify.com"
		f := newFixture(t, other)

		rec := f.do(http.MethodPut, "/admin/funnels/1", adminToken,
			`{"title":"mine now","triggerProductId":"1","offerProductId":"2"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeleteFunnel(t *testing.T) {
	f := newFixture(t, newTestFunnel("first", "1", "2"))

	rec := f.do(http.MethodDelete, "/admin/funnels/1", adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodDelete, "/admin/funnels/1", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	t.Run("totals", func(t *testing.T) {
		f := newFixture(t)
		f.stats.totals = &statistic.Totals{Orders: 3, Revenue: d("120.5"), Discount: d("30")}

		rec := f.do(http.MethodGet, "/admin/stats", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"totalOrders":3,"totalRevenue":120.50,"totalDiscount":30.00}`, rec.Body.String())
	})

	t.Run("empty shop", func(t *testing.T) {
		f := newFixture(t)
		f.stats.totals = &statistic.Totals{}

		rec := f.do(http.MethodGet, "/admin/stats", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"totalOrders":0,"totalRevenue":0,"totalDiscount":0}`, rec.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		f.stats.totalsErr = errors.New("db down")

		rec := f.do(http.MethodGet, "/admin/stats", adminToken, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestFieldErrors(t *testing.T) {
	v := newValidator()
	err := v.Struct(&funnelRequest{Title: "x"})
	fields := fieldErrors(err)
	assert.Equal(t, map[string]string{
		"triggerProductId": "This field is required",
		"offerProductId":   "This field is required",
	}, fields)

	assert.Nil(t, fieldErrors(errors.New("other")))
}
