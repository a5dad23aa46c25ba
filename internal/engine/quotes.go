package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"prediction-market-amm/internal/amm"
	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/market"
	"prediction-market-amm/internal/pricing"
	"prediction-market-amm/internal/storage"
)

// SwapQuote prices a swap and the pool prices it would leave behind.
type SwapQuote struct {
	amm.SwapQuote
	YesPriceAfter uint64
	NoPriceAfter  uint64
}

// QuoteSwap prices a swap of amount in direction without changing the pool.
func (e *Engine) QuoteSwap(ctx context.Context, marketAddr string, dir domain.SwapDirection, amount uint64) (*SwapQuote, error) {
	var q SwapQuote
	err := e.read(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, p, err := loadAMM(ctx, tx, marketAddr, "quote_swap")
		if err != nil {
			return err
		}
		after := *p
		if q.SwapQuote, err = amm.ExecuteSwap(&after, amount, dir); err != nil {
			return err
		}
		if q.YesPriceAfter, err = amm.Price(&after, domain.SideYes); err != nil {
			return err
		}
		q.NoPriceAfter, err = amm.Price(&after, domain.SideNo)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Quote is the display view of one side of a market for a given amount.
// Prices and odds are basis points.
type Quote struct {
	Market         string          `json:"market"`
	Side           domain.Side     `json:"side"`
	Amount         uint64          `json:"amount"`
	Price          uint64          `json:"price"` // estimated yes price
	BuyCost        uint64          `json:"buy_cost"`
	SellProceeds   uint64          `json:"sell_proceeds"`
	YesPayoutOdds  uint64          `json:"yes_payout_odds"`
	NoPayoutOdds   uint64          `json:"no_payout_odds"`
	ExpectedReturn uint64          `json:"expected_return"`
	YesOdds        decimal.Decimal `json:"yes_odds"` // stake share of the yes side
	NoOdds         decimal.Decimal `json:"no_odds"`
	PoolYesPrice   *uint64         `json:"pool_yes_price,omitempty"`
	PoolNoPrice    *uint64         `json:"pool_no_price,omitempty"`
}

// Quote estimates prices for amount on side. Pari-mutuel markets price from
// their stakes; AMM markets use the side totals against the collateral
// locked through the pool and also report the pool prices when the pool
// holds both reserves.
func (e *Engine) Quote(ctx context.Context, marketAddr string, side domain.Side, amount uint64) (*Quote, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: side %q", domain.ErrValidation, side)
	}

	var m *domain.Market
	var pool *domain.LiquidityPool
	err := e.read(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		if m, err = loadMarket(ctx, tx, marketAddr); err != nil {
			return err
		}
		if m.Kind == domain.KindAMM {
			pool, err = loadPool(ctx, tx, m.Address)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	liquidity := market.TotalPool(m)
	if pool != nil {
		liquidity = pool.Collateral
	}
	price := pricing.MarketPrice(m.TotalYesAmount, m.TotalNoAmount, liquidity, e.pricing)
	yesOdds, noOdds := pricing.PayoutOdds(price)

	q := &Quote{
		Market:         m.Address,
		Side:           side,
		Amount:         amount,
		Price:          price,
		BuyCost:        pricing.BuyPrice(price, amount, liquidity, side.IsYes()),
		SellProceeds:   pricing.SellPrice(price, amount, liquidity, side.IsYes()),
		YesPayoutOdds:  yesOdds,
		NoPayoutOdds:   noOdds,
		ExpectedReturn: pricing.ExpectedReturn(amount, price, side.IsYes()),
		YesOdds:        market.YesOdds(m),
		NoOdds:         market.NoOdds(m),
	}
	if pool != nil {
		yes, yesErr := amm.Price(pool, domain.SideYes)
		no, noErr := amm.Price(pool, domain.SideNo)
		if yesErr == nil && noErr == nil {
			q.PoolYesPrice, q.PoolNoPrice = &yes, &no
		}
	}
	return q, nil
}
