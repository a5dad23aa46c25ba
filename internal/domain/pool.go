package domain

// LiquidityPool is the constant-product inventory backing one AMM market.
// Corresponds to liquidity_pools table in PostgreSQL.
type LiquidityPool struct {
	Address         string `json:"address"`   // derived from ("pool", Market)
	Market          string `json:"market"`    // market address
	Authority       string `json:"authority"` // may pause, reprice fees and collect fees
	YesReserves     uint64 `json:"yes_reserves"`
	NoReserves      uint64 `json:"no_reserves"`
	TotalLiquidity  uint64 `json:"total_liquidity"`  // outstanding liquidity shares
	FeeRate         uint16 `json:"fee_rate"`         // basis points, <= MaxFeeRate
	AccumulatedFees uint64 `json:"accumulated_fees"` // uncollected, YesFees + NoFees
	YesFees         uint64 `json:"yes_fees"`         // uncollected fee tokens charged on yes input
	NoFees          uint64 `json:"no_fees"`
	IsActive        bool   `json:"is_active"`
	Collateral      uint64 `json:"collateral"` // value locked in the market vault through this pool
	YesSupply       uint64 `json:"yes_supply"` // yes tokens minted
	NoSupply        uint64 `json:"no_supply"`  // no tokens minted
	CreatedAt       int64  `json:"created_at"` // ms
	Version         int64  `json:"version"`
}

// MaxFeeRate caps every fee rate at 10%.
const MaxFeeRate = 1000

// Reserve returns the reserve of side.
func (p *LiquidityPool) Reserve(side Side) uint64 {
	if side == SideYes {
		return p.YesReserves
	}
	return p.NoReserves
}

// Supply returns the minted token supply of side.
func (p *LiquidityPool) Supply(side Side) uint64 {
	if side == SideYes {
		return p.YesSupply
	}
	return p.NoSupply
}
