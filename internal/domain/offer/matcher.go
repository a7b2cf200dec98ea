package offer

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
)

// Matcher selects the funnel triggered by a completed purchase.
type Matcher struct {
	funnels funnel.Repository
}

// NewMatcher creates a Matcher backed by the funnel store.
func NewMatcher(funnels funnel.Repository) *Matcher {
	return &Matcher{funnels: funnels}
}

// Match returns the most valuable funnel of shop triggered by any of the
// purchased product ids, or nil when none applies. Purchased ids are legacy
// numeric ids as found in checkout line items.
func (m *Matcher) Match(ctx context.Context, shop string, purchased []string) (*funnel.Funnel, error) {
	triggers, err := m.funnels.ListTriggerProductIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list trigger products")
	}

	common := Intersect(purchased, triggers)
	if len(common) == 0 {
		return nil, nil
	}

	gids := make([]string, len(common))
	for i, id := range common {
		gids[i] = catalog.ProductGID(id)
	}

	candidates, err := m.funnels.ListByTriggerProducts(ctx, shop, gids)
	if err != nil {
		return nil, errors.Wrap(err, "list funnels by trigger products")
	}
	return pickMostValuable(candidates), nil
}

// Intersect returns the ids of purchased that are also in triggers, without
// duplicates and in purchase order.
func Intersect(purchased, triggers []string) []string {
	set := make(map[string]struct{}, len(triggers))
	for _, id := range triggers {
		set[id] = struct{}{}
	}

	var out []string
	seen := make(map[string]struct{}, len(purchased))
	for _, id := range purchased {
		if _, ok := set[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// pickMostValuable returns the funnel with the highest cached offer price.
// Equal prices resolve to the lowest funnel id so repeated calls agree.
func pickMostValuable(funnels []funnel.Funnel) *funnel.Funnel {
	if len(funnels) == 0 {
		return nil
	}
	best := funnels[0]
	for _, f := range funnels[1:] {
		switch cmp := f.OfferProductPrice.Cmp(best.OfferProductPrice); {
		case cmp > 0:
			best = f
		case cmp == 0 && f.ID < best.ID:
			best = f
		}
	}
	return &best
}
