package offer

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
)

func TestDiscountedPriceProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 500
	properties := gopter.NewProperties(params)

	// Prices in cents and whole percents.
	cents := gen.Int64Range(0, 10_000_000)
	percents := gen.Int64Range(0, 100)

	properties.Property("bounded by zero and original price", prop.ForAll(
		func(c, p int64) bool {
			price := decimal.New(c, -2)
			got := DiscountedPrice(price, decimal.NewFromInt(p))
			return !got.IsNegative() && got.LessThanOrEqual(price)
		},
		cents, percents,
	))

	properties.Property("at most two decimal places", prop.ForAll(
		func(c, p int64) bool {
			got := DiscountedPrice(decimal.New(c, -2), decimal.NewFromInt(p))
			return got.Equal(got.Round(2))
		},
		cents, percents,
	))

	properties.Property("monotonic in discount", prop.ForAll(
		func(c, p int64) bool {
			price := decimal.New(c, -2)
			lo := DiscountedPrice(price, decimal.NewFromInt(p))
			hi := DiscountedPrice(price, decimal.NewFromInt(min(p+1, 100)))
			return hi.LessThanOrEqual(lo)
		},
		cents, percents,
	))

	properties.TestingRun(t)
}

func TestPickMostValuableProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("independent of candidate order", prop.ForAll(
		func(prices []int64, seed uint64) bool {
			funnels := make([]funnel.Funnel, len(prices))
			for i, c := range prices {
				funnels[i] = newTestFunnel(int64(i+1), testShop, strconv.Itoa(i), "1", decimal.New(c, -2).String(), 10)
			}
			want := pickMostValuable(funnels)

			shuffled := append([]funnel.Funnel(nil), funnels...)
			r := rand.New(rand.NewPCG(seed, seed))
			r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			got := pickMostValuable(shuffled)

			if want == nil || got == nil {
				return want == got
			}
			return want.ID == got.ID
		},
		// Narrow price range forces ties.
		gen.SliceOf(gen.Int64Range(0, 5)),
		gen.UInt64(),
	))

	properties.Property("no candidate is more valuable", prop.ForAll(
		func(prices []int64) bool {
			funnels := make([]funnel.Funnel, len(prices))
			for i, c := range prices {
				funnels[i] = newTestFunnel(int64(i+1), testShop, strconv.Itoa(i), "1", decimal.New(c, -2).String(), 10)
			}
			best := pickMostValuable(funnels)
			if best == nil {
				return len(funnels) == 0
			}
			for _, f := range funnels {
				if f.OfferProductPrice.GreaterThan(best.OfferProductPrice) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 100_000)),
	))

	properties.TestingRun(t)
}
