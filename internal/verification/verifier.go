// Package verification checks stored markets and pools against the state
// reconstructed from their event journal.
package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"prediction-market-amm/internal/domain"
)

var (
	// ErrMarketNotFound is returned when the market address doesn't exist.
	ErrMarketNotFound = errors.New("market not found")

	// ErrJournalInconsistent is returned when the journal cannot be replayed,
	// e.g. market_created is missing or pool sequences have gaps.
	ErrJournalInconsistent = errors.New("journal inconsistent")
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single market.
type VerificationResult struct {
	Market      string            // verified market address
	MarketID    string            // caller-chosen identifier
	Events      int               // journal events replayed
	Match       bool              // true if all fields match
	Divergences []FieldDivergence // list of divergent fields
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalMarkets     int                  // total markets verified
	MatchedMarkets   int                  // markets that matched exactly
	DivergentMarkets int                  // markets with divergences
	TotalEvents      int                  // journal events replayed
	Results          []VerificationResult // individual results
}

// Verifier checks stored state against the event journal.
type Verifier interface {
	// VerifyMarket replays the journal of one market and compares it
	// with the stored market, pool and positions.
	VerifyMarket(ctx context.Context, market string) (*VerificationResult, error)

	// VerifyAll verifies every stored market.
	VerifyAll(ctx context.Context) (*VerificationReport, error)
}

// Replayed is the state of a market rebuilt from its journal.
type Replayed struct {
	MarketVersion  int64
	TotalYesAmount uint64
	TotalNoAmount  uint64
	Resolved       bool
	Resolution     *bool
	ResolvedAt     *int64

	Pool *ReplayedPool // nil when the journal has no pool_created

	Claims       int
	ClaimedTotal uint64
}

// ReplayedPool is the state of a pool rebuilt from its journal.
type ReplayedPool struct {
	Version         int64
	YesReserves     uint64
	NoReserves      uint64
	TotalLiquidity  uint64
	FeeRate         uint16
	AccumulatedFees uint64
	YesFees         uint64
	NoFees          uint64
	IsActive        bool
}

// Replay folds the events of one market into the state they describe.
// Market events are applied in journal order. Pool events are applied by
// sequence, which must run 1..n without gaps. Creation events share a
// timestamp and sequence, so their relative order is not relied on.
func Replay(events []*domain.Event) (*Replayed, error) {
	r := &Replayed{}
	var created bool
	var poolEvents []*domain.Event
	for _, ev := range events {
		if ev.IsPoolEvent() {
			poolEvents = append(poolEvents, ev)
		}

		switch ev.Type {
		case domain.EventMarketCreated:
			if created {
				return nil, fmt.Errorf("%w: duplicate %s", ErrJournalInconsistent, ev.Type)
			}
			created = true
			r.MarketVersion++
		case domain.EventBetPlaced, domain.EventSharesBought:
			r.MarketVersion++
			if ev.Side == domain.SideYes {
				r.TotalYesAmount += ev.Amount
			} else {
				r.TotalNoAmount += ev.Amount
			}
		case domain.EventMarketResolved:
			if r.Resolved || ev.Outcome == nil {
				return nil, fmt.Errorf("%w: unexpected %s at %d", ErrJournalInconsistent, ev.Type, ev.Timestamp)
			}
			r.MarketVersion++
			r.Resolved = true
			outcome, at := *ev.Outcome, ev.Timestamp
			r.Resolution = &outcome
			r.ResolvedAt = &at
		case domain.EventWinningsClaimed:
			r.Claims++
			r.ClaimedTotal += ev.Amount
		}
	}

	if !created {
		return nil, fmt.Errorf("%w: no %s", ErrJournalInconsistent, domain.EventMarketCreated)
	}
	if len(poolEvents) == 0 {
		return r, nil
	}
	pool, err := replayPool(poolEvents)
	if err != nil {
		return nil, err
	}
	r.Pool = pool
	return r, nil
}

func replayPool(events []*domain.Event) (*ReplayedPool, error) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Sequence < events[j].Sequence
	})
	if events[0].Type != domain.EventPoolCreated {
		return nil, fmt.Errorf("%w: first pool event is %s", ErrJournalInconsistent, events[0].Type)
	}

	p := &ReplayedPool{}
	for i, ev := range events {
		if ev.Sequence != int64(i+1) {
			return nil, fmt.Errorf("%w: pool sequence %d at position %d", ErrJournalInconsistent, ev.Sequence, i+1)
		}
		p.Version = ev.Sequence
		p.YesReserves = ev.YesReserves
		p.NoReserves = ev.NoReserves

		switch ev.Type {
		case domain.EventPoolCreated:
			p.FeeRate = ev.FeeRate
			p.IsActive = true
		case domain.EventLiquidityAdded:
			p.TotalLiquidity += ev.Shares
		case domain.EventLiquidityRemoved:
			if ev.Shares > p.TotalLiquidity {
				return nil, fmt.Errorf("%w: %d shares removed from %d", ErrJournalInconsistent, ev.Shares, p.TotalLiquidity)
			}
			p.TotalLiquidity -= ev.Shares
		case domain.EventSwapExecuted:
			p.addFee(ev.Direction.Input(), ev.Fee)
		case domain.EventSharesBought:
			// a buy sells the opposite side into the pool
			p.addFee(ev.Side.Opposite(), ev.Fee)
		case domain.EventFeesCollected:
			p.AccumulatedFees, p.YesFees, p.NoFees = 0, 0, 0
		case domain.EventFeeRateUpdated:
			p.FeeRate = ev.FeeRate
		case domain.EventPoolDeactivated:
			p.IsActive = false
		case domain.EventPoolReactivated:
			p.IsActive = true
		}
	}
	return p, nil
}

func (p *ReplayedPool) addFee(side domain.Side, fee uint64) {
	p.AccumulatedFees += fee
	if side == domain.SideYes {
		p.YesFees += fee
	} else {
		p.NoFees += fee
	}
}

// CompareMarket compares a stored market with its replayed state.
func CompareMarket(stored *domain.Market, replayed *Replayed) []FieldDivergence {
	var ds []FieldDivergence
	ds = diverge(ds, "Version", stored.Version, replayed.MarketVersion)
	ds = diverge(ds, "TotalYesAmount", stored.TotalYesAmount, replayed.TotalYesAmount)
	ds = diverge(ds, "TotalNoAmount", stored.TotalNoAmount, replayed.TotalNoAmount)
	ds = diverge(ds, "Resolved", stored.Resolved, replayed.Resolved)
	if !ptrEquals(stored.Resolution, replayed.Resolution) {
		ds = append(ds, FieldDivergence{Field: "Resolution", Expected: stored.Resolution, Actual: replayed.Resolution})
	}
	if !ptrEquals(stored.ResolvedAt, replayed.ResolvedAt) {
		ds = append(ds, FieldDivergence{Field: "ResolvedAt", Expected: stored.ResolvedAt, Actual: replayed.ResolvedAt})
	}
	return ds
}

// ComparePool compares a stored pool with its replayed state. Either may be nil.
func ComparePool(stored *domain.LiquidityPool, replayed *ReplayedPool) []FieldDivergence {
	switch {
	case stored == nil && replayed == nil:
		return nil
	case stored == nil || replayed == nil:
		return []FieldDivergence{{Field: "Pool", Expected: stored != nil, Actual: replayed != nil}}
	}

	var ds []FieldDivergence
	ds = diverge(ds, "Pool.Version", stored.Version, replayed.Version)
	ds = diverge(ds, "Pool.YesReserves", stored.YesReserves, replayed.YesReserves)
	ds = diverge(ds, "Pool.NoReserves", stored.NoReserves, replayed.NoReserves)
	ds = diverge(ds, "Pool.TotalLiquidity", stored.TotalLiquidity, replayed.TotalLiquidity)
	ds = diverge(ds, "Pool.FeeRate", stored.FeeRate, replayed.FeeRate)
	ds = diverge(ds, "Pool.AccumulatedFees", stored.AccumulatedFees, replayed.AccumulatedFees)
	ds = diverge(ds, "Pool.YesFees", stored.YesFees, replayed.YesFees)
	ds = diverge(ds, "Pool.NoFees", stored.NoFees, replayed.NoFees)
	ds = diverge(ds, "Pool.IsActive", stored.IsActive, replayed.IsActive)
	return ds
}

// CompareClaims compares the claimed positions of a market with the
// winnings_claimed events.
func CompareClaims(positions []*domain.Position, replayed *Replayed) []FieldDivergence {
	var claims int
	var total uint64
	for _, p := range positions {
		if p.Claimed {
			claims++
			total += p.ClaimedAmount
		}
	}

	var ds []FieldDivergence
	ds = diverge(ds, "Claims", claims, replayed.Claims)
	ds = diverge(ds, "ClaimedTotal", total, replayed.ClaimedTotal)
	return ds
}

func diverge[T comparable](ds []FieldDivergence, field string, stored, replayed T) []FieldDivergence {
	if stored == replayed {
		return ds
	}
	return append(ds, FieldDivergence{Field: field, Expected: stored, Actual: replayed})
}

// ptrEquals returns true if both are nil, or both are non-nil and equal.
func ptrEquals[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
