package offer

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/wonderwork/funnel-upsell/internal/domain/auth"
	"github.com/wonderwork/funnel-upsell/internal/domain/changeset"
)

// Signer signs changesets for a purchase reference id.
type Signer interface {
	Sign(referenceID string, changes []changeset.Change) (string, error)
}

// Service runs the post-purchase pipeline: match, compile, and sign.
type Service struct {
	matcher  *Matcher
	compiler *Compiler
	sessions auth.SessionRepository
	signer   Signer
}

// NewService wires the pipeline steps together.
func NewService(matcher *Matcher, compiler *Compiler, sessions auth.SessionRepository, signer Signer) *Service {
	return &Service{
		matcher:  matcher,
		compiler: compiler,
		sessions: sessions,
		signer:   signer,
	}
}

// Resolve returns the offer for the purchase of s, or nil when there is none.
// Catalog failures degrade to nil so the checkout is never blocked; only
// funnel store and session store failures are returned.
func (s *Service) Resolve(ctx context.Context, cs *auth.CheckoutSession) (*ResolvedOffer, error) {
	lg := zctx.From(ctx).With(zap.String("shop", cs.Shop), zap.String("reference_id", cs.ReferenceID))

	f, err := s.matcher.Match(ctx, cs.Shop, cs.ProductIDs)
	if err != nil {
		return nil, errors.Wrap(err, "match funnel")
	}
	if f == nil {
		lg.Debug("No funnel matches purchase", zap.Strings("product_ids", cs.ProductIDs))
		return nil, nil
	}

	token, err := s.sessions.AccessToken(ctx, cs.Shop)
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			lg.Warn("Shop has no offline session, skipping offer")
			return nil, nil
		}
		return nil, errors.Wrap(err, "get shop session")
	}

	o, err := s.compiler.Compile(ctx, f, token)
	if err != nil {
		if errors.Is(err, ErrOfferUnavailable) {
			lg.Info("Offer unavailable", zap.Int64("funnel_id", f.ID), zap.Error(err))
		} else {
			lg.Warn("Offer compilation failed", zap.Int64("funnel_id", f.ID), zap.Error(err))
		}
		return nil, nil
	}
	return o, nil
}

// Authorize re-resolves the offer for the purchase of cs, validates the
// requested changes against it, and signs the result. The reference id must be
// the one of the authenticated checkout session.
func (s *Service) Authorize(ctx context.Context, cs *auth.CheckoutSession, referenceID string, requested []changeset.Change) (string, error) {
	if referenceID == "" || referenceID != cs.ReferenceID {
		return "", ErrReferenceMismatch
	}

	o, err := s.Resolve(ctx, cs)
	if err != nil {
		return "", err
	}
	if o == nil {
		return "", ErrNoOffer
	}

	changes, err := ValidateSelection(o, requested)
	if err != nil {
		return "", err
	}

	token, err := s.signer.Sign(referenceID, changes)
	if err != nil {
		return "", errors.Wrap(err, "sign changeset")
	}
	return token, nil
}
