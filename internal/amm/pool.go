// Package amm implements the constant-product liquidity pool of an AMM-backed
// market. Every mutating function validates and computes the complete new
// state first and assigns it only on success, so a failed call leaves the
// pool unchanged.
package amm

import (
	"fmt"

	"prediction-market-amm/internal/domain"
	fp "prediction-market-amm/internal/fixedpoint"
)

// NewPool initializes an empty, active pool.
func NewPool(address, market, authority string, feeRate uint16, now int64) (*domain.LiquidityPool, error) {
	if feeRate > domain.MaxFeeRate {
		return nil, fmt.Errorf("%w: %d bp", domain.ErrFeeTooHigh, feeRate)
	}
	return &domain.LiquidityPool{
		Address:   address,
		Market:    market,
		Authority: authority,
		FeeRate:   feeRate,
		IsActive:  true,
		CreatedAt: now,
	}, nil
}

// AddLiquidity deposits amount, split evenly between the reserves, and returns
// the liquidity shares minted. The first deposit mints shares 1:1; later
// deposits mint amount * total_liquidity / (yes + no). An odd unit is dust.
func AddLiquidity(p *domain.LiquidityPool, amount uint64) (uint64, error) {
	if !p.IsActive {
		return 0, domain.ErrPoolInactive
	}
	if amount == 0 {
		return 0, domain.ErrInvalidAmount
	}

	reserves, err := fp.Add(p.YesReserves, p.NoReserves)
	if err != nil {
		return 0, err
	}

	shares := amount
	if p.TotalLiquidity > 0 && reserves > 0 {
		shares, err = fp.MulDiv(amount, p.TotalLiquidity, reserves)
		if err != nil {
			return 0, fmt.Errorf("mint shares: %w", err)
		}
		if shares == 0 {
			return 0, fmt.Errorf("%w: deposit %d mints no shares", domain.ErrInvalidAmount, amount)
		}
	}

	half := amount / 2
	yes, err := fp.Add(p.YesReserves, half)
	if err != nil {
		return 0, err
	}
	no, err := fp.Add(p.NoReserves, half)
	if err != nil {
		return 0, err
	}
	total, err := fp.Add(p.TotalLiquidity, shares)
	if err != nil {
		return 0, err
	}

	p.YesReserves, p.NoReserves, p.TotalLiquidity = yes, no, total
	return shares, nil
}

// RemoveLiquidity burns shares and returns the floored proportional slice of
// both reserves.
func RemoveLiquidity(p *domain.LiquidityPool, shares uint64) (yesAmount, noAmount uint64, err error) {
	if !p.IsActive {
		return 0, 0, domain.ErrPoolInactive
	}
	if shares == 0 {
		return 0, 0, domain.ErrInvalidAmount
	}
	if shares > p.TotalLiquidity {
		return 0, 0, fmt.Errorf("%w: %d shares requested, %d outstanding",
			domain.ErrInsufficientLiquidity, shares, p.TotalLiquidity)
	}

	if yesAmount, err = fp.MulDiv(p.YesReserves, shares, p.TotalLiquidity); err != nil {
		return 0, 0, err
	}
	if noAmount, err = fp.MulDiv(p.NoReserves, shares, p.TotalLiquidity); err != nil {
		return 0, 0, err
	}

	p.YesReserves -= yesAmount
	p.NoReserves -= noAmount
	p.TotalLiquidity -= shares
	return yesAmount, noAmount, nil
}

// SwapQuote is the full result of pricing one swap against a pool snapshot.
type SwapQuote struct {
	Direction        domain.SwapDirection
	Input            uint64
	Fee              uint64
	InputAfterFee    uint64
	Output           uint64
	NewInputReserve  uint64
	NewOutputReserve uint64
}

// CalculateSwapOutput prices a swap without mutating the pool.
func CalculateSwapOutput(p *domain.LiquidityPool, input uint64, dir domain.SwapDirection) (SwapQuote, error) {
	if !p.IsActive {
		return SwapQuote{}, domain.ErrPoolInactive
	}
	if !dir.Valid() {
		return SwapQuote{}, fmt.Errorf("%w: swap direction %q", domain.ErrValidation, dir)
	}
	if input == 0 {
		return SwapQuote{}, domain.ErrInvalidAmount
	}

	inReserve, outReserve := p.Reserve(dir.Input()), p.Reserve(dir.Output())
	if inReserve == 0 || outReserve == 0 {
		return SwapQuote{}, domain.ErrInsufficientLiquidity
	}

	fee, err := fp.BpsOf(input, uint64(p.FeeRate))
	if err != nil {
		return SwapQuote{}, err
	}
	inputAfterFee, err := fp.Sub(input, fee)
	if err != nil {
		return SwapQuote{}, err
	}
	newIn, err := fp.Add(inReserve, inputAfterFee)
	if err != nil {
		return SwapQuote{}, err
	}
	// k = inReserve * outReserve, kept wide
	newOut, err := fp.MulDiv(inReserve, outReserve, newIn)
	if err != nil {
		return SwapQuote{}, err
	}
	output, err := fp.Sub(outReserve, newOut)
	if err != nil {
		return SwapQuote{}, err
	}
	if output >= outReserve {
		return SwapQuote{}, fmt.Errorf("%w: swap would drain the %s reserve",
			domain.ErrInsufficientLiquidity, dir.Output())
	}

	return SwapQuote{
		Direction:        dir,
		Input:            input,
		Fee:              fee,
		InputAfterFee:    inputAfterFee,
		Output:           output,
		NewInputReserve:  newIn,
		NewOutputReserve: newOut,
	}, nil
}

// ExecuteSwap applies exactly the quote CalculateSwapOutput returns for the
// same pool state.
func ExecuteSwap(p *domain.LiquidityPool, input uint64, dir domain.SwapDirection) (SwapQuote, error) {
	q, err := CalculateSwapOutput(p, input, dir)
	if err != nil {
		return SwapQuote{}, err
	}
	fees, err := fp.Add(p.AccumulatedFees, q.Fee)
	if err != nil {
		return SwapQuote{}, err
	}
	// the fee is withheld in input-side tokens
	yesFees, noFees := p.YesFees, p.NoFees
	if dir.Input() == domain.SideYes {
		yesFees += q.Fee
	} else {
		noFees += q.Fee
	}

	if dir == domain.YesToNo {
		p.YesReserves, p.NoReserves = q.NewInputReserve, q.NewOutputReserve
	} else {
		p.NoReserves, p.YesReserves = q.NewInputReserve, q.NewOutputReserve
	}
	p.AccumulatedFees, p.YesFees, p.NoFees = fees, yesFees, noFees
	return q, nil
}

// Price returns side_reserves * 10000 / (yes + no), floored. Each side is
// floored on its own, so the two prices sum to 10000 or 9999.
func Price(p *domain.LiquidityPool, side domain.Side) (uint64, error) {
	if p.YesReserves == 0 || p.NoReserves == 0 {
		return 0, domain.ErrInsufficientLiquidity
	}
	total, err := fp.Add(p.YesReserves, p.NoReserves)
	if err != nil {
		return 0, err
	}
	return fp.MulDiv(p.Reserve(side), fp.BasisPoints, total)
}

// Deactivate blocks add, remove and swap.
func Deactivate(p *domain.LiquidityPool) {
	p.IsActive = false
}

// Reactivate re-enables a deactivated pool.
func Reactivate(p *domain.LiquidityPool) {
	p.IsActive = true
}

// UpdateFeeRate replaces the swap fee.
func UpdateFeeRate(p *domain.LiquidityPool, rate uint16) error {
	if rate > domain.MaxFeeRate {
		return fmt.Errorf("%w: %d bp", domain.ErrFeeTooHigh, rate)
	}
	p.FeeRate = rate
	return nil
}

// CollectedFees are the fee tokens taken out of a pool, by side.
type CollectedFees struct {
	Yes uint64 `json:"yes"`
	No  uint64 `json:"no"`
}

// Total is the amount reported as accumulated fees.
func (c CollectedFees) Total() uint64 {
	return c.Yes + c.No
}

// CollectFees returns the uncollected fee tokens and resets them.
func CollectFees(p *domain.LiquidityPool) CollectedFees {
	c := CollectedFees{Yes: p.YesFees, No: p.NoFees}
	p.AccumulatedFees, p.YesFees, p.NoFees = 0, 0, 0
	return c
}
