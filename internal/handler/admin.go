package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wonderwork/funnel-upsell/internal/domain/auth"
	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

var errCatalogUnavailable = errors.New("catalog unavailable")

// ListFunnels returns a page of the shop's funnels with product titles and
// images from the catalog.
func (h *Handler) ListFunnels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := adminShop(ctx)

	page := queryInt(r, "page", 1)
	limit := min(queryInt(r, "limit", defaultPageSize), maxPageSize)

	p, err := h.funnels.List(ctx, shop, page, limit)
	if err != nil {
		h.writeFunnelError(w, r, err)
		return
	}

	out := make([]funnelDTO, len(p.Funnels))
	for i := range p.Funnels {
		out[i] = newFunnelDTO(&p.Funnels[i])
	}
	h.enrich(ctx, shop, out)

	writeJSON(w, http.StatusOK, funnelPageResponse{
		Funnels: out,
		Total:   p.Total,
		Page:    p.Page,
		Limit:   p.Limit,
	})
}

// GetFunnel returns a single funnel of the shop.
func (h *Handler) GetFunnel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := adminShop(ctx)

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, funnel.ErrNotFound.Error())
		return
	}
	f, err := h.funnels.GetByID(ctx, shop, id)
	if err != nil {
		h.writeFunnelError(w, r, err)
		return
	}

	out := []funnelDTO{newFunnelDTO(f)}
	h.enrich(ctx, shop, out)
	writeJSON(w, http.StatusOK, out[0])
}

// CreateFunnel stores a new funnel. The offer price is taken from the catalog.
func (h *Handler) CreateFunnel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := &funnel.Funnel{Shop: adminShop(ctx)}

	offerSummary, err := h.prepareFunnel(r, f)
	if err != nil {
		h.writeFunnelError(w, r, err)
		return
	}
	if err := h.funnels.Create(ctx, f); err != nil {
		h.writeFunnelError(w, r, err)
		return
	}

	zctx.From(ctx).Info("Funnel created", zap.Int64("funnel_id", f.ID))
	dto := newFunnelDTO(f)
	dto.OfferProductTitle = offerSummary.Title
	dto.OfferProductImage = offerSummary.Image
	writeJSON(w, http.StatusCreated, dto)
}

// UpdateFunnel replaces the editable fields of an existing funnel.
func (h *Handler) UpdateFunnel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := adminShop(ctx)

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, funnel.ErrNotFound.Error())
		return
	}
	f, err := h.funnels.GetByID(ctx, shop, id)
	if err != nil {
		h.writeFunnelError(w, r, err)
		return
	}

	offerSummary, err := h.prepareFunnel(r, f)
	if err != nil {
		h.writeFunnelError(w, r, err)
		return
	}
	if err := h.funnels.Update(ctx, f); err != nil {
		h.writeFunnelError(w, r, err)
		return
	}

	dto := newFunnelDTO(f)
	dto.OfferProductTitle = offerSummary.Title
	dto.OfferProductImage = offerSummary.Image
	writeJSON(w, http.StatusOK, dto)
}

// DeleteFunnel removes a funnel. Its recorded statistics still count
// towards the shop totals.
func (h *Handler) DeleteFunnel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, funnel.ErrNotFound.Error())
		return
	}
	if err := h.funnels.Delete(ctx, adminShop(ctx), id); err != nil {
		h.writeFunnelError(w, r, err)
		return
	}

	zctx.From(ctx).Info("Funnel deleted", zap.Int64("funnel_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Stats returns the accepted-offer totals of the shop.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, err := h.stats.Totals(ctx, adminShop(ctx))
	if err != nil {
		zctx.From(ctx).Error("Get statistic totals", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, newStatsResponse(t))
}

// prepareFunnel applies the request body to f, validates it and refreshes the
// cached offer price from the catalog.
func (h *Handler) prepareFunnel(r *http.Request, f *funnel.Funnel) (*catalog.Summary, error) {
	ctx := r.Context()

	var req funnelRequest
	if err := decode(r, &req); err != nil {
		return nil, &funnel.ValidationError{Fields: map[string]string{"body": "Invalid JSON"}}
	}
	if err := h.validate.Struct(&req); err != nil {
		if fields := fieldErrors(err); fields != nil {
			return nil, &funnel.ValidationError{Fields: fields}
		}
		return nil, errors.Wrap(err, "validate funnel")
	}

	f.Title = strings.TrimSpace(req.Title)
	f.TriggerProductID = catalog.ProductGID(strings.TrimSpace(req.TriggerProductID))
	f.OfferProductID = catalog.ProductGID(strings.TrimSpace(req.OfferProductID))
	f.Discount = req.Discount
	if err := funnel.Validate(f); err != nil {
		return nil, err
	}

	token, err := h.sessions.AccessToken(ctx, f.Shop)
	if err != nil {
		return nil, errors.Wrap(err, "get shop session")
	}
	s, err := h.catalog.Summary(ctx, f.Shop, token, f.OfferProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, &funnel.ValidationError{Fields: map[string]string{
				"offerProductId": "Offer product not found",
			}}
		}
		zctx.From(ctx).Warn("Fetch offer product", zap.Error(err))
		return nil, errCatalogUnavailable
	}
	f.OfferProductPrice = s.Price
	return s, nil
}

// enrich fills product titles and images from the catalog. Lookups run
// concurrently; a failed lookup leaves its fields empty.
func (h *Handler) enrich(ctx context.Context, shop string, funnels []funnelDTO) {
	if len(funnels) == 0 {
		return
	}
	lg := zctx.From(ctx)

	token, err := h.sessions.AccessToken(ctx, shop)
	if err != nil {
		lg.Warn("Skip funnel enrichment", zap.Error(err))
		return
	}

	summary := func(ctx context.Context, gid string) *catalog.Summary {
		s, err := h.catalog.Summary(ctx, shop, token, gid)
		if err != nil {
			lg.Debug("Product summary", zap.String("product_id", gid), zap.Error(err))
			return nil
		}
		return s
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.enrichConcurrency)
	for i := range funnels {
		f := &funnels[i]
		g.Go(func() error {
			if s := summary(gctx, f.TriggerProductID); s != nil {
				f.TriggerProductTitle = s.Title
				f.TriggerProductImage = s.Image
			}
			return nil
		})
		g.Go(func() error {
			if s := summary(gctx, f.OfferProductID); s != nil {
				f.OfferProductTitle = s.Title
				f.OfferProductImage = s.Image
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Handler) writeFunnelError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *funnel.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeFieldErrors(w, vErr.Fields)
	case errors.Is(err, funnel.ErrNotFound):
		writeError(w, http.StatusNotFound, funnel.ErrNotFound.Error())
	case errors.Is(err, funnel.ErrTriggerInUse):
		writeJX(w, http.StatusConflict, ErrorResponse{
			Code:    http.StatusConflict,
			Message: funnel.ErrTriggerInUse.Error(),
			Fields:  map[string]string{"triggerProductId": "This product already triggers another funnel"},
		})
	case errors.Is(err, auth.ErrNoSession):
		writeError(w, http.StatusUnauthorized, auth.ErrNoSession.Error())
	case errors.Is(err, errCatalogUnavailable):
		writeError(w, http.StatusBadGateway, errCatalogUnavailable.Error())
	default:
		zctx.From(r.Context()).Error("Funnel request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
