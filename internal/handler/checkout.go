package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/wonderwork/funnel-upsell/internal/domain/changeset"
	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
	"github.com/wonderwork/funnel-upsell/internal/domain/offer"
	"github.com/wonderwork/funnel-upsell/internal/domain/statistic"
)

// Offer returns the upsell for the authenticated purchase, or a null offer.
// Lookup failures never fail the checkout.
func (h *Handler) Offer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cs := checkoutSession(ctx)

	o, err := h.offers.Resolve(ctx, cs)
	if err != nil {
		zctx.From(ctx).Error("Resolve offer", zap.Error(err))
		h.metrics.offer(ctx, "error")
		writeJX(w, http.StatusOK, offerResponse{})
		return
	}
	if o == nil {
		h.metrics.offer(ctx, "none")
		writeJX(w, http.StatusOK, offerResponse{})
		return
	}

	h.metrics.offer(ctx, "offered")
	writeJX(w, http.StatusOK, offerResponse{Offer: newOfferDTO(o)})
}

// SignChangeset authorizes the shopper's selection and returns the signed
// changeset token.
func (h *Handler) SignChangeset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cs := checkoutSession(ctx)

	var req signRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid changeset request")
		return
	}

	token, err := h.offers.Authorize(ctx, cs, req.reference(), req.changes())
	if err != nil {
		h.writeAuthorizeError(w, r, err)
		return
	}

	h.metrics.changeset(ctx, "signed")
	writeJX(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) writeAuthorizeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	var selErr *offer.SelectionError
	switch {
	case errors.As(err, &selErr):
		h.metrics.changeset(ctx, "rejected")
		writeError(w, http.StatusForbidden, selErr.Error())
	case errors.Is(err, offer.ErrReferenceMismatch), errors.Is(err, offer.ErrNoOffer):
		h.metrics.changeset(ctx, "rejected")
		lg.Warn("Changeset rejected", zap.Error(err))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, changeset.ErrSigningUnavailable):
		h.metrics.changeset(ctx, "error")
		lg.Error("Changeset signing unavailable", zap.Error(err))
		writeError(w, http.StatusInternalServerError, changeset.ErrSigningUnavailable.Error())
	default:
		h.metrics.changeset(ctx, "error")
		lg.Error("Authorize changeset", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// StatisticUpdate records an accepted offer. Repeated updates for the same
// purchase are acknowledged without being counted again.
func (h *Handler) StatisticUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cs := checkoutSession(ctx)

	var req statisticRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid statistic request")
		return
	}

	ref := cs.ReferenceID
	if ref == "" {
		ref = req.ReferenceID
	}
	rec := &statistic.Record{
		Shop:        cs.Shop,
		FunnelID:    int64(req.FunnelID),
		ReferenceID: ref,
		Revenue:     req.Revenue,
		Discount:    req.Discount,
	}

	err := h.stats.Record(ctx, rec)
	switch {
	case err == nil:
		h.metrics.statistic(ctx, "recorded")
	case errors.Is(err, statistic.ErrDuplicate):
		h.metrics.statistic(ctx, "duplicate")
		zctx.From(ctx).Info("Duplicate statistic update",
			zap.Int64("funnel_id", rec.FunnelID),
			zap.String("reference_id", ref),
		)
	case errors.Is(err, statistic.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, funnel.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	default:
		h.metrics.statistic(ctx, "error")
		zctx.From(ctx).Error("Record statistic", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJX(w, http.StatusOK, successResponse{Success: true})
}

// UsedProductIDs lists the legacy ids of every product that triggers a funnel.
func (h *Handler) UsedProductIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.funnels.ListTriggerProductIDs(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List trigger products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}
