package amm

import (
	"fmt"

	"prediction-market-amm/internal/domain"
	fp "prediction-market-amm/internal/fixedpoint"
)

// ProvideLiquidity locks amount of collateral in the market vault and deposits
// the minted outcome tokens through AddLiquidity.
func ProvideLiquidity(p *domain.LiquidityPool, amount uint64) (uint64, error) {
	next := *p
	shares, err := AddLiquidity(&next, amount)
	if err != nil {
		return 0, err
	}
	if err := mint(&next, amount, amount/2); err != nil {
		return 0, err
	}
	*p = next
	return shares, nil
}

// BuyResult describes a collateral-for-tokens purchase.
type BuyResult struct {
	Side   domain.Side
	Minted uint64    // complete sets minted from the collateral
	Swap   SwapQuote // unwanted side sold into the pool
	Tokens uint64    // tokens of Side credited to the buyer
}

// Buy mints amount complete sets, keeps the side tokens and swaps the
// opposite tokens into the pool for more of side.
func Buy(p *domain.LiquidityPool, amount uint64, side domain.Side) (BuyResult, error) {
	if !side.Valid() {
		return BuyResult{}, fmt.Errorf("%w: side %q", domain.ErrValidation, side)
	}
	if amount == 0 {
		return BuyResult{}, domain.ErrInvalidAmount
	}

	next := *p
	q, err := ExecuteSwap(&next, amount, domain.DirectionFrom(side.Opposite()))
	if err != nil {
		return BuyResult{}, err
	}
	if err := mint(&next, amount, amount); err != nil {
		return BuyResult{}, err
	}
	tokens, err := fp.Add(amount, q.Output)
	if err != nil {
		return BuyResult{}, err
	}

	*p = next
	return BuyResult{Side: side, Minted: amount, Swap: q, Tokens: tokens}, nil
}

// mint records collateral locked and perSide tokens of each outcome created.
func mint(p *domain.LiquidityPool, collateral, perSide uint64) error {
	c, err := fp.Add(p.Collateral, collateral)
	if err != nil {
		return err
	}
	yes, err := fp.Add(p.YesSupply, perSide)
	if err != nil {
		return err
	}
	no, err := fp.Add(p.NoSupply, perSide)
	if err != nil {
		return err
	}
	p.Collateral, p.YesSupply, p.NoSupply = c, yes, no
	return nil
}
