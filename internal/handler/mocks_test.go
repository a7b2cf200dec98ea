package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/wonderwork/funnel-upsell/internal/domain/auth"
	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/changeset"
	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
	"github.com/wonderwork/funnel-upsell/internal/domain/offer"
	"github.com/wonderwork/funnel-upsell/internal/domain/statistic"
)

// --- Mock implementations ---

type mockOffers struct {
	offer      *offer.ResolvedOffer
	resolveErr error

	token        string
	authorizeErr error
	gotRef       string
	gotChanges   []changeset.Change
	calls        int
}

func (m *mockOffers) Resolve(context.Context, *auth.CheckoutSession) (*offer.ResolvedOffer, error) {
	m.calls++
	return m.offer, m.resolveErr
}

func (m *mockOffers) Authorize(_ context.Context, _ *auth.CheckoutSession, ref string, changes []changeset.Change) (string, error) {
	m.calls++
	m.gotRef = ref
	m.gotChanges = changes
	if m.authorizeErr != nil {
		return "", m.authorizeErr
	}
	return m.token, nil
}

type mockStats struct {
	recordErr error
	totals    *statistic.Totals
	totalsErr error
	records   []statistic.Record
}

func (m *mockStats) Record(_ context.Context, rec *statistic.Record) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.records = append(m.records, *rec)
	return nil
}

func (m *mockStats) Totals(context.Context, string) (*statistic.Totals, error) {
	if m.totalsErr != nil {
		return nil, m.totalsErr
	}
	return m.totals, nil
}

type mockFunnels struct {
	mu      sync.Mutex
	funnels map[int64]*funnel.Funnel
	nextID  int64
	listErr error
}

func newMockFunnels(fs ...*funnel.Funnel) *mockFunnels {
	m := &mockFunnels{funnels: make(map[int64]*funnel.Funnel)}
	for _, f := range fs {
		m.nextID++
		f.ID = m.nextID
		m.funnels[f.ID] = f
	}
	return m
}

func (m *mockFunnels) GetByID(_ context.Context, shop string, id int64) (*funnel.Funnel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.funnels[id]
	if !ok || f.Shop != shop {
		return nil, funnel.ErrNotFound
	}
	c := *f
	return &c, nil
}

func (m *mockFunnels) FindByTriggerProduct(_ context.Context, shop, trigger string) (*funnel.Funnel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.funnels {
		if f.Shop == shop && f.TriggerProductID == trigger {
			c := *f
			return &c, nil
		}
	}
	return nil, funnel.ErrNotFound
}

func (m *mockFunnels) ListTriggerProductIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var ids []string
	for _, f := range m.funnels {
		ids = append(ids, catalog.LegacyID(f.TriggerProductID))
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockFunnels) ListByTriggerProducts(context.Context, string, []string) ([]funnel.Funnel, error) {
	return nil, nil
}

func (m *mockFunnels) List(_ context.Context, shop string, page, limit int) (*funnel.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var all []funnel.Funnel
	for _, f := range m.funnels {
		if f.Shop == shop {
			all = append(all, *f)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	page = funnel.ClampPage(page, limit, len(all))
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	return &funnel.Page{Funnels: all[start:end], Total: len(all), Page: page, Limit: limit}, nil
}

func (m *mockFunnels) conflict(f *funnel.Funnel) bool {
	for _, o := range m.funnels {
		if o.ID != f.ID && o.Shop == f.Shop && o.TriggerProductID == f.TriggerProductID {
			return true
		}
	}
	return false
}

func (m *mockFunnels) Create(_ context.Context, f *funnel.Funnel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflict(f) {
		return funnel.ErrTriggerInUse
	}
	m.nextID++
	f.ID = m.nextID
	c := *f
	m.funnels[f.ID] = &c
	return nil
}

func (m *mockFunnels) Update(_ context.Context, f *funnel.Funnel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.funnels[f.ID]; !ok {
		return funnel.ErrNotFound
	}
	if m.conflict(f) {
		return funnel.ErrTriggerInUse
	}
	c := *f
	m.funnels[f.ID] = &c
	return nil
}

func (m *mockFunnels) Delete(_ context.Context, shop string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.funnels[id]
	if !ok || f.Shop != shop {
		return funnel.ErrNotFound
	}
	delete(m.funnels, id)
	return nil
}

type mockSessions struct {
	tokens map[string]string
}

func (m *mockSessions) AccessToken(_ context.Context, shop string) (string, error) {
	tok, ok := m.tokens[shop]
	if !ok {
		return "", auth.ErrNoSession
	}
	return tok, nil
}

func (m *mockSessions) Upsert(context.Context, *auth.ShopSession) error { return nil }

type mockGateway struct {
	mu        sync.Mutex
	summaries map[string]*catalog.Summary
	err       error
	calls     int
}

func (m *mockGateway) Product(context.Context, string, string, string) (*catalog.Product, error) {
	return nil, catalog.ErrProductNotFound
}

func (m *mockGateway) Summary(_ context.Context, _, _, gid string) (*catalog.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.summaries[gid]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return s, nil
}

type mockVerifier struct{}

func (mockVerifier) VerifyCheckout(token string) (*auth.CheckoutSession, error) {
	if token != checkoutToken {
		return nil, auth.ErrUnauthorized
	}
	return &auth.CheckoutSession{Shop: testShop, ReferenceID: "ref-1", ProductIDs: []string{"1"}}, nil
}

func (mockVerifier) VerifyAdmin(token string) (string, error) {
	if token != adminToken {
		return "", auth.ErrUnauthorized
	}
	return testShop, nil
}

// --- Helpers ---

const (
	testShop      = "demo.myshopify.com"
	checkoutToken = "checkout-token"
	adminToken    = "admin-token"
)

type fixture struct {
	offers   *mockOffers
	stats    *mockStats
	funnels  *mockFunnels
	sessions *mockSessions
	gateway  *mockGateway
	mux      *http.ServeMux
}

func newFixture(t *testing.T, funnels ...*funnel.Funnel) *fixture {
	t.Helper()

	metrics, err := NewMetrics(noop.NewMeterProvider())
	require.NoError(t, err)

	f := &fixture{
		offers:   &mockOffers{token: "signed-token"},
		stats:    &mockStats{},
		funnels:  newMockFunnels(funnels...),
		sessions: &mockSessions{tokens: map[string]string{testShop: "shpat_test"}},
		gateway: &mockGateway{summaries: map[string]*catalog.Summary{
			catalog.ProductGID("1"): {ID: catalog.ProductGID("1"), Title: "Shoes", Image: "https://cdn.example.com/1.jpg", Price: d("80.00")},
			catalog.ProductGID("2"): {ID: catalog.ProductGID("2"), Title: "Socks", Image: "https://cdn.example.com/2.jpg", Price: d("12.50")},
			catalog.ProductGID("3"): {ID: catalog.ProductGID("3"), Title: "Laces", Price: d("4.00")},
		}},
		mux: http.NewServeMux(),
	}
	h := NewHandler(Config{EnrichConcurrency: 2}, f.offers, f.stats, f.funnels, f.sessions, f.gateway, mockVerifier{}, metrics)
	h.Routes(f.mux)
	return f
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		_ = json.NewEncoder(&buf).Encode(v)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestFunnel(title, trigger, offerID string) *funnel.Funnel {
	return &funnel.Funnel{
		Shop:              testShop,
		Title:             title,
		TriggerProductID:  catalog.ProductGID(trigger),
		OfferProductID:    catalog.ProductGID(offerID),
		OfferProductPrice: d("12.50"),
		Discount:          decimal.NewFromInt(20),
	}
}
