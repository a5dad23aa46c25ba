package domain

// MarketKind selects how a market takes positions and settles.
type MarketKind string

const (
	// KindPariMutuel markets accumulate direct yes/no stakes.
	KindPariMutuel MarketKind = "pari_mutuel"
	// KindAMM markets trade outcome tokens against a constant-product pool.
	KindAMM MarketKind = "amm"
)

// Valid reports whether k is a known market kind.
func (k MarketKind) Valid() bool {
	return k == KindPariMutuel || k == KindAMM
}

// Market is the lifecycle and accounting record of one predicted event.
// Corresponds to markets table in PostgreSQL.
type Market struct {
	Address          string     `json:"address"`   // derived from ("market", MarketID)
	MarketID         string     `json:"market_id"` // caller-chosen identifier, immutable
	Kind             MarketKind `json:"kind"`      // pari_mutuel | amm
	Authority        string     `json:"authority"` // creator
	Oracle           string     `json:"oracle"`    // designated resolver
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	ResolutionSource string     `json:"resolution_source"`
	EndTime          int64      `json:"end_time"`          // bet cutoff and earliest resolution (ms)
	CreatorFeeRate   uint16     `json:"creator_fee_rate"`  // basis points
	PlatformFeeRate  uint16     `json:"platform_fee_rate"` // basis points
	MinBetAmount     uint64     `json:"min_bet_amount"`
	MaxBetAmount     uint64     `json:"max_bet_amount"`
	TotalYesAmount   uint64     `json:"total_yes_amount"`
	TotalNoAmount    uint64     `json:"total_no_amount"`
	Resolved         bool       `json:"resolved"`
	Resolution       *bool      `json:"resolution,omitempty"`  // set iff Resolved
	ResolvedAt       *int64     `json:"resolved_at,omitempty"` // ms, set iff Resolved
	CreatedAt        int64      `json:"created_at"`            // ms
	Version          int64      `json:"version"`               // bumped on every save
}

// Outcome returns the winning side of a resolved market.
func (m *Market) Outcome() (Side, bool) {
	if !m.Resolved || m.Resolution == nil {
		return "", false
	}
	return SideOf(*m.Resolution), true
}
