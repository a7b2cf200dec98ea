package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/wonderwork/funnel-upsell/internal/domain/auth"
)

type ctxKey int

const (
	checkoutSessionKey ctxKey = iota
	adminShopKey
)

func bearerToken(r *http.Request) string {
	v := r.Header.Get("Authorization")
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(v[7:])
}

// CheckoutAuth authenticates the checkout extension by its session token and
// stores the verified purchase context in the request context.
func (h *Handler) CheckoutAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs, err := h.verifier.VerifyCheckout(bearerToken(r))
		if err != nil {
			zctx.From(r.Context()).Debug("Checkout authentication failed", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), checkoutSessionKey, cs)
		ctx = zctx.With(ctx, zap.String("shop", cs.Shop))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminAuth authenticates the embedded admin by its session token and stores
// the shop domain in the request context.
func (h *Handler) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shop, err := h.verifier.VerifyAdmin(bearerToken(r))
		if err != nil {
			zctx.From(r.Context()).Debug("Admin authentication failed", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), adminShopKey, shop)
		ctx = zctx.With(ctx, zap.String("shop", shop))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func checkoutSession(ctx context.Context) *auth.CheckoutSession {
	cs, _ := ctx.Value(checkoutSessionKey).(*auth.CheckoutSession)
	return cs
}

func adminShop(ctx context.Context) string {
	shop, _ := ctx.Value(adminShopKey).(string)
	return shop
}
