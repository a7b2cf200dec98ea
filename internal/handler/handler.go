// Package handler exposes the checkout extension and embedded admin APIs over
// HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/wonderwork/funnel-upsell/internal/domain/auth"
	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/changeset"
	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
	"github.com/wonderwork/funnel-upsell/internal/domain/offer"
	"github.com/wonderwork/funnel-upsell/internal/domain/statistic"
)

// OfferService resolves and authorizes post-purchase offers.
type OfferService interface {
	Resolve(ctx context.Context, cs *auth.CheckoutSession) (*offer.ResolvedOffer, error)
	Authorize(ctx context.Context, cs *auth.CheckoutSession, referenceID string, requested []changeset.Change) (string, error)
}

// StatisticRecorder records accepted offers and reports shop totals.
type StatisticRecorder interface {
	Record(ctx context.Context, rec *statistic.Record) error
	Totals(ctx context.Context, shop string) (*statistic.Totals, error)
}

// Verifier authenticates platform-issued session tokens.
type Verifier interface {
	VerifyCheckout(token string) (*auth.CheckoutSession, error)
	VerifyAdmin(token string) (string, error)
}

var (
	_ OfferService      = (*offer.Service)(nil)
	_ StatisticRecorder = (*statistic.Recorder)(nil)
	_ Verifier          = (*auth.Verifier)(nil)
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// EnrichConcurrency bounds concurrent catalog lookups when listing funnels.
	EnrichConcurrency int
}

// Handler serves the HTTP API, delegating to the domain services.
type Handler struct {
	offers   OfferService
	stats    StatisticRecorder
	funnels  funnel.Repository
	sessions auth.SessionRepository
	catalog  catalog.Gateway
	verifier Verifier
	metrics  *Metrics
	validate *validator.Validate

	enrichConcurrency int
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	offers OfferService,
	stats StatisticRecorder,
	funnels funnel.Repository,
	sessions auth.SessionRepository,
	gw catalog.Gateway,
	verifier Verifier,
	metrics *Metrics,
) *Handler {
	if cfg.EnrichConcurrency < 1 {
		cfg.EnrichConcurrency = 4
	}
	return &Handler{
		offers:            offers,
		stats:             stats,
		funnels:           funnels,
		sessions:          sessions,
		catalog:           gw,
		verifier:          verifier,
		metrics:           metrics,
		validate:          newValidator(),
		enrichConcurrency: cfg.EnrichConcurrency,
	}
}

// Routes registers every API route on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	checkout := h.CheckoutAuth
	mux.Handle("POST /api/offer", checkout(http.HandlerFunc(h.Offer)))
	mux.Handle("POST /api/sign-changeset", checkout(http.HandlerFunc(h.SignChangeset)))
	mux.Handle("POST /api/statistic-update", checkout(http.HandlerFunc(h.StatisticUpdate)))
	mux.Handle("POST /api/used-product-ids", checkout(http.HandlerFunc(h.UsedProductIDs)))

	admin := h.AdminAuth
	mux.Handle("GET /admin/funnels", admin(http.HandlerFunc(h.ListFunnels)))
	mux.Handle("POST /admin/funnels", admin(http.HandlerFunc(h.CreateFunnel)))
	mux.Handle("GET /admin/funnels/{id}", admin(http.HandlerFunc(h.GetFunnel)))
	mux.Handle("PUT /admin/funnels/{id}", admin(http.HandlerFunc(h.UpdateFunnel)))
	mux.Handle("DELETE /admin/funnels/{id}", admin(http.HandlerFunc(h.DeleteFunnel)))
	mux.Handle("GET /admin/stats", admin(http.HandlerFunc(h.Stats)))
}
