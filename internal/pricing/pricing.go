// Package pricing computes display prices, costs with slippage, payout odds and
// expected returns. Every function is pure and saturates instead of failing.
// Prices are basis points of certainty: 5000 = 50%.
package pricing

import (
	"github.com/creasty/defaults"

	fp "prediction-market-amm/internal/fixedpoint"
)

const (
	minLiquidityFactor = 8000
	maxLiquidityFactor = 12000
	defaultSlippage    = 500  // 5% when liquidity is unknown
	maxSlippage        = 1000 // 10%
	certainty          = fp.BasisPoints
	oddsScale          = fp.BasisPoints * fp.BasisPoints
)

// Params tunes calculate_market_price.
type Params struct {
	BasePrice        uint64 `yaml:"base_price" default:"5000" validate:"lte=10000"`
	VolatilityFactor uint64 `yaml:"volatility_factor" default:"100"`
	LiquidityDepth   uint64 `yaml:"liquidity_depth" default:"1000000"` // target liquidity for the full liquidity factor
	TimeDecayFactor  uint64 `yaml:"time_decay_factor" default:"50"`    // reserved, not applied
}

// DefaultParams returns Params populated from their default tags.
func DefaultParams() Params {
	var p Params
	if err := defaults.Set(&p); err != nil {
		panic(err)
	}
	return p
}

// MarketPrice estimates the yes price from share counts and liquidity.
func MarketPrice(yesShares, noShares, totalLiquidity uint64, params Params) uint64 {
	if totalLiquidity == 0 {
		return params.BasePrice
	}
	totalShares := fp.SaturatingAdd(yesShares, noShares)
	if totalShares == 0 {
		return params.BasePrice
	}

	yesProbability := fp.SaturatingMulDiv(yesShares, certainty, totalShares)
	factor := liquidityFactor(totalLiquidity, params.LiquidityDepth)
	adjustment := volatilityAdjustment(yesShares, noShares, params.VolatilityFactor)

	price := fp.SaturatingAdd(fp.SaturatingMul(yesProbability, factor)/certainty, adjustment)
	return fp.Min(price, certainty)
}

// liquidityFactor scales from 8000 at zero liquidity to 12000 at the target.
func liquidityFactor(current, target uint64) uint64 {
	if target == 0 {
		return certainty
	}
	ratio := fp.SaturatingMulDiv(current, certainty, target)
	scaled := fp.SaturatingAdd(minLiquidityFactor, fp.SaturatingMul(ratio, 4000)/certainty)
	return fp.Clamp(scaled, minLiquidityFactor, maxLiquidityFactor)
}

// volatilityAdjustment is proportional to the normalized yes/no imbalance.
func volatilityAdjustment(yesShares, noShares, volatilityFactor uint64) uint64 {
	total := fp.SaturatingAdd(yesShares, noShares)
	if total == 0 {
		return 0
	}
	var imbalance uint64
	if yesShares > noShares {
		imbalance = yesShares - noShares
	} else {
		imbalance = noShares - yesShares
	}
	ratio := fp.SaturatingMulDiv(imbalance, certainty, total)
	return fp.SaturatingMul(ratio, volatilityFactor) / certainty
}

// Slippage is quadratic in order size over liquidity, capped at 10%.
func Slippage(orderSize, totalLiquidity uint64) uint64 {
	if totalLiquidity == 0 {
		return defaultSlippage
	}
	ratio := fp.SaturatingMulDiv(orderSize, certainty, totalLiquidity)
	return fp.Min(fp.SaturatingMul(ratio, ratio)/certainty, maxSlippage)
}

// BuyPrice returns the cost of shares at the current yes price. The no side
// pays the complementary price. Slippage always adds to the cost and is
// computed on the yes-side base cost for both sides.
func BuyPrice(currentPrice, shares, totalLiquidity uint64, yes bool) uint64 {
	if shares == 0 {
		return 0
	}
	baseCost := fp.SaturatingMul(currentPrice, shares) / certainty
	slippageCost := fp.SaturatingMul(baseCost, Slippage(shares, totalLiquidity)) / certainty

	if yes {
		return fp.SaturatingAdd(baseCost, slippageCost)
	}
	inverse := fp.SaturatingSub(certainty, currentPrice)
	inverseCost := fp.SaturatingMul(inverse, shares) / certainty
	return fp.SaturatingAdd(inverseCost, slippageCost)
}

// SellPrice returns the proceeds of selling shares; slippage reduces them.
func SellPrice(currentPrice, shares, totalLiquidity uint64, yes bool) uint64 {
	if shares == 0 {
		return 0
	}
	price := currentPrice
	if !yes {
		price = fp.SaturatingSub(certainty, currentPrice)
	}
	baseValue := fp.SaturatingMul(price, shares) / certainty
	reduction := fp.SaturatingMul(baseValue, Slippage(shares, totalLiquidity)) / certainty
	return fp.SaturatingSub(baseValue, reduction)
}

// PayoutOdds returns the payout per 10000 staked on yes and on no.
func PayoutOdds(currentPrice uint64) (yesOdds, noOdds uint64) {
	if currentPrice == 0 {
		return 0, certainty
	}
	if currentPrice >= certainty {
		return certainty, 0
	}
	return oddsScale / currentPrice, oddsScale / (certainty - currentPrice)
}

// ExpectedReturn is the profit of investment if the predicted side wins,
// floored at zero.
func ExpectedReturn(investment, currentPrice uint64, yes bool) uint64 {
	yesOdds, noOdds := PayoutOdds(currentPrice)
	odds := noOdds
	if yes {
		odds = yesOdds
	}
	potential := fp.SaturatingMul(investment, odds) / certainty
	return fp.SaturatingSub(potential, investment)
}
