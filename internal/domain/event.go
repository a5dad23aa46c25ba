package domain

// EventType names a structured notification emitted after a committed operation.
type EventType string

const (
	EventMarketCreated    EventType = "market_created"
	EventBetPlaced        EventType = "bet_placed"
	EventMarketResolved   EventType = "market_resolved"
	EventWinningsClaimed  EventType = "winnings_claimed"
	EventPoolCreated      EventType = "pool_created"
	EventLiquidityAdded   EventType = "liquidity_added"
	EventLiquidityRemoved EventType = "liquidity_removed"
	EventSwapExecuted     EventType = "swap_executed"
	EventSharesBought     EventType = "shares_bought"
	EventFeesCollected    EventType = "fees_collected"
	EventFeeRateUpdated   EventType = "fee_rate_updated"
	EventPoolDeactivated  EventType = "pool_deactivated"
	EventPoolReactivated  EventType = "pool_reactivated"
)

// Event is a flat record of one committed state change. Fields that do not
// apply to a type are zero. Corresponds to market_events table in ClickHouse.
type Event struct {
	EventID     string        `json:"event_id"`
	Type        EventType     `json:"type"`
	Market      string        `json:"market"`
	Actor       string        `json:"actor"`
	Sequence    int64         `json:"sequence"`  // version of the mutated record after the change
	Timestamp   int64         `json:"timestamp"` // ms
	Side        Side          `json:"side,omitempty"`
	Direction   SwapDirection `json:"direction,omitempty"`
	Outcome     *bool         `json:"outcome,omitempty"`
	Amount      uint64        `json:"amount,omitempty"`
	AmountOut   uint64        `json:"amount_out,omitempty"`
	YesAmount   uint64        `json:"yes_amount,omitempty"`
	NoAmount    uint64        `json:"no_amount,omitempty"`
	Shares      uint64        `json:"shares,omitempty"`
	Fee         uint64        `json:"fee,omitempty"`
	FeeRate     uint16        `json:"fee_rate,omitempty"`
	YesReserves uint64        `json:"yes_reserves,omitempty"`
	NoReserves  uint64        `json:"no_reserves,omitempty"`
}

// IsPoolEvent reports whether the event's sequence tracks the pool record.
func (e *Event) IsPoolEvent() bool {
	switch e.Type {
	case EventPoolCreated, EventLiquidityAdded, EventLiquidityRemoved, EventSwapExecuted,
		EventSharesBought, EventFeesCollected, EventFeeRateUpdated,
		EventPoolDeactivated, EventPoolReactivated:
		return true
	}
	return false
}
