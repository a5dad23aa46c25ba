package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, Params{
		BasePrice:        5000,
		VolatilityFactor: 100,
		LiquidityDepth:   1_000_000,
		TimeDecayFactor:  50,
	}, p)
}

func TestMarketPrice(t *testing.T) {
	params := DefaultParams()

	tests := []struct {
		name      string
		yes, no   uint64
		liquidity uint64
		want      uint64
	}{
		{"no liquidity returns base", 1000, 1000, 0, 5000},
		{"no shares returns base", 0, 0, 100_000, 5000},
		{"balanced thin liquidity", 1000, 1000, 100_000, 4200},
		{"yes heavy thin liquidity", 2000, 1000, 100_000, 5632},
		{"balanced at target depth", 1000, 1000, 1_000_000, 6000},
		{"factor clamped above target", 3000, 1000, 2_000_000, 9050},
		{"clamped to certainty", 1_000_000, 0, 1_000_000, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MarketPrice(tt.yes, tt.no, tt.liquidity, params))
		})
	}
}

func TestMarketPriceMonotoneInYesShares(t *testing.T) {
	params := DefaultParams()
	balanced := MarketPrice(1000, 1000, 100_000, params)
	yesHeavy := MarketPrice(2000, 1000, 100_000, params)
	assert.Greater(t, yesHeavy, balanced)
}

func TestMarketPriceZeroDepth(t *testing.T) {
	params := DefaultParams()
	params.LiquidityDepth = 0
	// factor is neutral without a target
	assert.Equal(t, uint64(5000), MarketPrice(1000, 1000, 10, params))
}

func TestSlippage(t *testing.T) {
	assert.Equal(t, uint64(500), Slippage(100, 0))
	assert.Equal(t, uint64(0), Slippage(100, 100_000))
	assert.Equal(t, uint64(100), Slippage(10_000, 100_000))
	assert.Equal(t, uint64(1000), Slippage(50_000, 100_000))
}

func TestBuyAndSellPrice(t *testing.T) {
	t.Run("equal sides at even price", func(t *testing.T) {
		yes := BuyPrice(5000, 100, 100_000, true)
		no := BuyPrice(5000, 100, 100_000, false)
		assert.Equal(t, uint64(50), yes)
		assert.Equal(t, yes, no)
	})

	t.Run("slippage adds to buys", func(t *testing.T) {
		assert.Equal(t, uint64(6060), BuyPrice(6000, 10_000, 100_000, true))
		assert.Equal(t, uint64(4060), BuyPrice(6000, 10_000, 100_000, false))
	})

	t.Run("slippage reduces sells", func(t *testing.T) {
		assert.Equal(t, uint64(5940), SellPrice(6000, 10_000, 100_000, true))
		assert.Equal(t, uint64(3960), SellPrice(6000, 10_000, 100_000, false))
	})

	t.Run("zero shares cost nothing", func(t *testing.T) {
		assert.Zero(t, BuyPrice(6000, 0, 100_000, true))
		assert.Zero(t, SellPrice(6000, 0, 100_000, false))
	})

	t.Run("saturates instead of overflowing", func(t *testing.T) {
		assert.NotPanics(t, func() {
			cost := BuyPrice(math.MaxUint64, math.MaxUint64, 1, true)
			assert.GreaterOrEqual(t, cost, uint64(math.MaxUint64/10000))
		})
	})
}

func TestPayoutOdds(t *testing.T) {
	tests := []struct {
		price   uint64
		yesOdds uint64
		noOdds  uint64
	}{
		{0, 0, 10000},
		{10000, 10000, 0},
		{12000, 10000, 0},
		{2500, 40000, 13333},
		{5000, 20000, 20000},
	}

	for _, tt := range tests {
		yes, no := PayoutOdds(tt.price)
		assert.Equal(t, tt.yesOdds, yes, "yes odds at %d", tt.price)
		assert.Equal(t, tt.noOdds, no, "no odds at %d", tt.price)
	}
}

func TestExpectedReturn(t *testing.T) {
	assert.Equal(t, uint64(300), ExpectedReturn(100, 2500, true))
	assert.Equal(t, uint64(33), ExpectedReturn(100, 2500, false))
	// a side that cannot pay out floors at zero
	assert.Zero(t, ExpectedReturn(100, 10000, false))
}

func TestPricingProperties(t *testing.T) {
	params := DefaultParams()

	rapid.Check(t, func(t *rapid.T) {
		yes := rapid.Uint64().Draw(t, "yes")
		no := rapid.Uint64().Draw(t, "no")
		liquidity := rapid.Uint64().Draw(t, "liquidity")
		price := rapid.Uint64Range(0, 10000).Draw(t, "price")
		shares := rapid.Uint64().Draw(t, "shares")
		side := rapid.Bool().Draw(t, "side")

		if p := MarketPrice(yes, no, liquidity, params); p > 10000 {
			t.Fatalf("price %d above certainty", p)
		}
		if buy, sell := BuyPrice(price, shares, liquidity, side), SellPrice(price, shares, liquidity, side); buy < sell {
			t.Fatalf("buy %d below sell %d", buy, sell)
		}
		if price > 0 && price < 10000 {
			yesOdds, noOdds := PayoutOdds(price)
			if yesOdds < 10000 || noOdds < 10000 {
				t.Fatalf("odds below even money at %d: %d/%d", price, yesOdds, noOdds)
			}
		}
	})
}
