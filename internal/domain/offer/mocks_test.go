package offer

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonderwork/funnel-upsell/internal/domain/auth"
	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/changeset"
	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
)

// --- Mock implementations ---

type mockFunnelRepo struct {
	funnels    []funnel.Funnel
	triggerErr error
	listErr    error
	listCalls  int
}

func (m *mockFunnelRepo) GetByID(_ context.Context, shop string, id int64) (*funnel.Funnel, error) {
	for _, f := range m.funnels {
		if f.Shop == shop && f.ID == id {
			return &f, nil
		}
	}
	return nil, funnel.ErrNotFound
}

func (m *mockFunnelRepo) FindByTriggerProduct(_ context.Context, shop, trigger string) (*funnel.Funnel, error) {
	for _, f := range m.funnels {
		if f.Shop == shop && f.TriggerProductID == trigger {
			return &f, nil
		}
	}
	return nil, funnel.ErrNotFound
}

func (m *mockFunnelRepo) ListTriggerProductIDs(_ context.Context) ([]string, error) {
	if m.triggerErr != nil {
		return nil, m.triggerErr
	}
	ids := make([]string, len(m.funnels))
	for i, f := range m.funnels {
		ids[i] = catalog.LegacyID(f.TriggerProductID)
	}
	return ids, nil
}

func (m *mockFunnelRepo) ListByTriggerProducts(_ context.Context, shop string, gids []string) ([]funnel.Funnel, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	want := make(map[string]bool, len(gids))
	for _, g := range gids {
		want[g] = true
	}
	var out []funnel.Funnel
	for _, f := range m.funnels {
		if f.Shop == shop && want[f.TriggerProductID] {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OfferProductPrice.GreaterThan(out[j].OfferProductPrice)
	})
	return out, nil
}

func (m *mockFunnelRepo) List(context.Context, string, int, int) (*funnel.Page, error) {
	return &funnel.Page{}, nil
}

func (m *mockFunnelRepo) Create(context.Context, *funnel.Funnel) error { return nil }

func (m *mockFunnelRepo) Update(context.Context, *funnel.Funnel) error { return nil }

func (m *mockFunnelRepo) Delete(context.Context, string, int64) error { return nil }

type mockGateway struct {
	products map[string]*catalog.Product
	err      error
	calls    int
}

func (m *mockGateway) Product(_ context.Context, _, _, gid string) (*catalog.Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[gid]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (m *mockGateway) Summary(_ context.Context, _, _, gid string) (*catalog.Summary, error) {
	p, ok := m.products[gid]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &catalog.Summary{ID: p.ID, Title: p.Title, Price: p.Variants[0].Price}, nil
}

type mockSessions struct {
	tokens map[string]string
	err    error
}

func (m *mockSessions) AccessToken(_ context.Context, shop string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	tok, ok := m.tokens[shop]
	if !ok {
		return "", auth.ErrNoSession
	}
	return tok, nil
}

func (m *mockSessions) Upsert(context.Context, *auth.ShopSession) error { return nil }

type mockSigner struct {
	referenceID string
	changes     []changeset.Change
	err         error
}

func (m *mockSigner) Sign(referenceID string, changes []changeset.Change) (string, error) {
	m.referenceID = referenceID
	m.changes = changes
	if m.err != nil {
		return "", m.err
	}
	return "signed-token", nil
}

// --- Helpers ---

const testShop = "demo.myshopify.com"

func newTestFunnel(id int64, shop, trigger, offer, price string, discount int64) funnel.Funnel {
	return funnel.Funnel{
		ID:                id,
		Shop:              shop,
		Title:             "funnel",
		TriggerProductID:  catalog.ProductGID(trigger),
		OfferProductID:    catalog.ProductGID(offer),
		OfferProductPrice: decimal.RequireFromString(price),
		Discount:          decimal.NewFromInt(discount),
	}
}

func newTestProduct(id string, prices ...string) *catalog.Product {
	p := &catalog.Product{
		ID:            catalog.ProductGID(id),
		Title:         "Offer " + id,
		Description:   "A fine product",
		FeaturedImage: "https://cdn.example.com/" + id + ".jpg",
	}
	for i, price := range prices {
		p.Variants = append(p.Variants, catalog.Variant{
			ID:                int64(1000 + i),
			Title:             "Variant",
			DisplayName:       "Offer " + id + " - Variant",
			Price:             decimal.RequireFromString(price),
			AvailableForSale:  true,
			InventoryQuantity: 10,
		})
	}
	return p
}

func newGateway(products ...*catalog.Product) *mockGateway {
	m := &mockGateway{products: make(map[string]*catalog.Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}
