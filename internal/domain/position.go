package domain

// Position is a user's stake in one market. Created lazily on the first stake.
// Corresponds to positions table in PostgreSQL.
type Position struct {
	Address         string `json:"address"` // derived from ("position", Owner, Market)
	Owner           string `json:"owner"`
	Market          string `json:"market"`
	YesTokens       uint64 `json:"yes_tokens"`       // yes stake or yes outcome tokens
	NoTokens        uint64 `json:"no_tokens"`        // no stake or no outcome tokens
	LiquidityShares uint64 `json:"liquidity_shares"` // AMM markets only
	Claimed         bool   `json:"claimed"`
	ClaimedAmount   uint64 `json:"claimed_amount"`
	CreatedAt       int64  `json:"created_at"` // ms
	UpdatedAt       int64  `json:"updated_at"` // ms
	Version         int64  `json:"version"`
}

// Tokens returns the holding on side.
func (p *Position) Tokens(side Side) uint64 {
	if side == SideYes {
		return p.YesTokens
	}
	return p.NoTokens
}

// SetTokens replaces the holding on side.
func (p *Position) SetTokens(side Side, amount uint64) {
	if side == SideYes {
		p.YesTokens = amount
	} else {
		p.NoTokens = amount
	}
}
