package verification

import (
	"context"
	"errors"
	"fmt"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// JournalVerifier implements Verifier over a record store and its journal.
type JournalVerifier struct {
	store  storage.Store
	events storage.EventStore
}

// NewJournalVerifier creates a new JournalVerifier.
func NewJournalVerifier(store storage.Store, events storage.EventStore) *JournalVerifier {
	return &JournalVerifier{store: store, events: events}
}

// snapshot is the stored state of one market read in a single transaction.
type snapshot struct {
	market    *domain.Market
	pool      *domain.LiquidityPool
	positions []*domain.Position
}

// VerifyMarket verifies a single market by replaying its journal.
func (v *JournalVerifier) VerifyMarket(ctx context.Context, market string) (*VerificationResult, error) {
	// 1. Load stored state
	snap, err := v.load(ctx, market)
	if err != nil {
		return nil, err
	}

	// 2. Replay journal
	events, err := v.events.GetByMarket(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("load journal of %s: %w", market, err)
	}
	replayed, err := Replay(events)
	if err != nil {
		return nil, err
	}

	// 3. Compare results
	divergences := CompareMarket(snap.market, replayed)
	divergences = append(divergences, ComparePool(snap.pool, replayed.Pool)...)
	divergences = append(divergences, CompareClaims(snap.positions, replayed)...)

	return &VerificationResult{
		Market:      market,
		MarketID:    snap.market.MarketID,
		Events:      len(events),
		Match:       len(divergences) == 0,
		Divergences: divergences,
	}, nil
}

// VerifyAll verifies all stored markets.
func (v *JournalVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	var markets []*domain.Market
	err := v.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		markets, err = tx.Markets().List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	report := &VerificationReport{
		TotalMarkets: len(markets),
		Results:      make([]VerificationResult, 0, len(markets)),
	}

	for _, m := range markets {
		result, err := v.VerifyMarket(ctx, m.Address)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Record error as divergence
			report.Results = append(report.Results, VerificationResult{
				Market:   m.Address,
				MarketID: m.MarketID,
				Match:    false,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentMarkets++
			continue
		}

		report.TotalEvents += result.Events
		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedMarkets++
		} else {
			report.DivergentMarkets++
		}
	}

	return report, nil
}

func (v *JournalVerifier) load(ctx context.Context, market string) (*snapshot, error) {
	snap := &snapshot{}
	err := v.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		snap.market, err = tx.Markets().GetByAddress(ctx, market)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrMarketNotFound
			}
			return err
		}

		snap.pool, err = tx.Pools().GetByMarket(ctx, market)
		if errors.Is(err, storage.ErrNotFound) {
			snap.pool, err = nil, nil
		}
		if err != nil {
			return err
		}

		snap.positions, err = tx.Positions().GetByMarket(ctx, market)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
