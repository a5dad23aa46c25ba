package engine

import (
	"context"
	"errors"
	"fmt"

	"prediction-market-amm/internal/amm"
	"prediction-market-amm/internal/domain"
	fp "prediction-market-amm/internal/fixedpoint"
	"prediction-market-amm/internal/market"
	"prediction-market-amm/internal/settlement"
	"prediction-market-amm/internal/storage"
)

// CreateMarketRequest describes a new market. Authority is the caller.
type CreateMarketRequest struct {
	market.Params
	// PoolFeeRate applies to AMM markets; nil uses the engine default.
	PoolFeeRate *uint16 `json:"pool_fee_rate,omitempty"`
}

// CreateMarket validates and persists a new market, plus its pool for the
// AMM kind.
func (e *Engine) CreateMarket(ctx context.Context, caller string, req CreateMarketRequest) (*domain.Market, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	req.Authority = caller

	addr, err := e.addr.Market(req.MarketID)
	if err != nil {
		return nil, fmt.Errorf("derive market address: %w", err)
	}

	var created *domain.Market
	var pool *domain.LiquidityPool
	err = e.execute(ctx, "create_market", addr, caller, func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error) {
		m, err := market.Initialize(addr, req.Params, now)
		if err != nil {
			return nil, err
		}
		if err := tx.Markets().Insert(ctx, m); err != nil {
			return nil, fmt.Errorf("insert market %s: %w", req.MarketID, err)
		}

		created = m
		ev := newEvent(domain.EventMarketCreated, m.Address, caller, m.Version, now)
		evs := []*domain.Event{ev}

		if m.Kind != domain.KindAMM {
			return evs, nil
		}

		feeRate := e.feeRate
		if req.PoolFeeRate != nil {
			feeRate = *req.PoolFeeRate
		}
		poolAddr, err := e.addr.Pool(m.Address)
		if err != nil {
			return nil, fmt.Errorf("derive pool address: %w", err)
		}
		p, err := amm.NewPool(poolAddr, m.Address, caller, feeRate, now)
		if err != nil {
			return nil, err
		}
		if err := tx.Pools().Insert(ctx, p); err != nil {
			return nil, fmt.Errorf("insert pool: %w", err)
		}
		pool = p

		pev := poolEvent(domain.EventPoolCreated, p, caller, now)
		pev.FeeRate = p.FeeRate
		return append(evs, pev), nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.MarketsCreated.WithLabelValues(string(created.Kind)).Inc()
	if pool != nil {
		e.observePool(pool)
	}
	return created, nil
}

// PlaceBet stakes amount on side of a pari-mutuel market, moving the value
// from the caller's balance to the market vault.
func (e *Engine) PlaceBet(ctx context.Context, caller, marketAddr string, amount uint64, side domain.Side) (*domain.Position, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var pos *domain.Position
	err := e.execute(ctx, "place_bet", marketAddr, caller, func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error) {
		m, err := loadMarket(ctx, tx, marketAddr)
		if err != nil {
			return nil, err
		}
		if err := requireKind(m, domain.KindPariMutuel, "place_bet"); err != nil {
			return nil, err
		}
		if err := market.PlaceBet(m, amount, side, now); err != nil {
			return nil, err
		}

		p, err := e.position(ctx, tx, caller, m.Address, now)
		if err != nil {
			return nil, err
		}
		stake, err := fp.Add(p.Tokens(side), amount)
		if err != nil {
			return nil, err
		}
		p.SetTokens(side, stake)
		p.UpdatedAt = now

		if err := e.toVault(ctx, tx, caller, m.Address, amount); err != nil {
			return nil, err
		}
		if err := tx.Markets().Update(ctx, m); err != nil {
			return nil, fmt.Errorf("save market: %w", err)
		}
		if err := savePosition(ctx, tx, p); err != nil {
			return nil, err
		}
		pos = p

		ev := newEvent(domain.EventBetPlaced, m.Address, caller, m.Version, now)
		ev.Side = side
		ev.Amount = amount
		return []*domain.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.VolumeTotal.WithLabelValues("place_bet", string(side)).Add(float64(amount))
	return pos, nil
}

// ResolveMarket fixes the outcome. Only the market's oracle may resolve,
// and only once its end time has passed.
func (e *Engine) ResolveMarket(ctx context.Context, caller, marketAddr string, outcome bool) (*domain.Market, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var resolved *domain.Market
	err := e.execute(ctx, "resolve_market", marketAddr, caller, func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error) {
		m, err := loadMarket(ctx, tx, marketAddr)
		if err != nil {
			return nil, err
		}
		if err := market.Resolve(m, caller, outcome, now); err != nil {
			return nil, err
		}
		if err := tx.Markets().Update(ctx, m); err != nil {
			return nil, fmt.Errorf("save market: %w", err)
		}
		resolved = m

		ev := newEvent(domain.EventMarketResolved, m.Address, caller, m.Version, now)
		ev.Outcome = &outcome
		ev.YesAmount = m.TotalYesAmount
		ev.NoAmount = m.TotalNoAmount
		return []*domain.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.MarketsResolved.WithLabelValues(string(domain.SideOf(outcome))).Inc()
	return resolved, nil
}

// Claim pays the caller's winnings from the market vault. The payout
// transfer and the claimed flag commit in the same transaction.
func (e *Engine) Claim(ctx context.Context, caller, marketAddr string) (*domain.Position, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var claimed *domain.Position
	err := e.execute(ctx, "claim", marketAddr, caller, func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error) {
		m, err := loadMarket(ctx, tx, marketAddr)
		if err != nil {
			return nil, err
		}
		if !m.Resolved {
			return nil, domain.ErrMarketNotResolved
		}

		var pool *domain.LiquidityPool
		if m.Kind == domain.KindAMM {
			if pool, err = loadPool(ctx, tx, m.Address); err != nil {
				return nil, err
			}
		}
		book, err := settlement.ForMarket(m, pool)
		if err != nil {
			return nil, err
		}

		posAddr, err := e.addr.Position(caller, m.Address)
		if err != nil {
			return nil, fmt.Errorf("derive position address: %w", err)
		}
		p, err := tx.Positions().GetByAddress(ctx, posAddr)
		if err != nil {
			return nil, fmt.Errorf("load position of %s: %w", caller, err)
		}

		payout, err := book.Claim(caller, p)
		if err != nil {
			return nil, err
		}
		p.UpdatedAt = now

		if err := e.fromVault(ctx, tx, m.Address, caller, payout); err != nil {
			return nil, err
		}
		if err := tx.Positions().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("save position: %w", err)
		}
		claimed = p

		side, _ := m.Outcome()
		ev := newEvent(domain.EventWinningsClaimed, m.Address, caller, p.Version, now)
		ev.Side = side
		ev.Amount = payout
		return []*domain.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.PayoutsTotal.Add(float64(claimed.ClaimedAmount))
	return claimed, nil
}

func loadMarket(ctx context.Context, tx storage.Tx, addr string) (*domain.Market, error) {
	m, err := tx.Markets().GetByAddress(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load market %s: %w", addr, err)
	}
	return m, nil
}

func loadPool(ctx context.Context, tx storage.Tx, market string) (*domain.LiquidityPool, error) {
	p, err := tx.Pools().GetByMarket(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("load pool of %s: %w", market, err)
	}
	return p, nil
}

// position loads the caller's position in market, or returns a new unsaved
// one (Version 0) on the first stake.
func (e *Engine) position(ctx context.Context, tx storage.Tx, owner, market string, now int64) (*domain.Position, error) {
	addr, err := e.addr.Position(owner, market)
	if err != nil {
		return nil, fmt.Errorf("derive position address: %w", err)
	}
	p, err := tx.Positions().GetByAddress(ctx, addr)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load position: %w", err)
	}
	return &domain.Position{
		Address:   addr,
		Owner:     owner,
		Market:    market,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// existingPosition is position without lazy creation.
func (e *Engine) existingPosition(ctx context.Context, tx storage.Tx, owner, market string) (*domain.Position, error) {
	addr, err := e.addr.Position(owner, market)
	if err != nil {
		return nil, fmt.Errorf("derive position address: %w", err)
	}
	p, err := tx.Positions().GetByAddress(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load position of %s: %w", owner, err)
	}
	return p, nil
}

func savePosition(ctx context.Context, tx storage.Tx, p *domain.Position) error {
	var err error
	if p.Version == 0 {
		err = tx.Positions().Insert(ctx, p)
	} else {
		err = tx.Positions().Update(ctx, p)
	}
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

// toVault moves amount from account to the market vault.
func (e *Engine) toVault(ctx context.Context, tx storage.Tx, account, market string, amount uint64) error {
	vault, err := e.addr.Vault(market)
	if err != nil {
		return fmt.Errorf("derive vault address: %w", err)
	}
	if err := tx.Ledger().Transfer(ctx, account, vault, amount); err != nil {
		return fmt.Errorf("debit %s: %w", account, err)
	}
	return nil
}

// fromVault moves amount from the market vault to account.
func (e *Engine) fromVault(ctx context.Context, tx storage.Tx, market, account string, amount uint64) error {
	vault, err := e.addr.Vault(market)
	if err != nil {
		return fmt.Errorf("derive vault address: %w", err)
	}
	if err := tx.Ledger().Transfer(ctx, vault, account, amount); err != nil {
		return fmt.Errorf("pay %s: %w", account, err)
	}
	return nil
}

// requireOpen applies the place_bet lifecycle checks to non-bet trades.
func requireOpen(m *domain.Market, now int64) error {
	if m.Resolved {
		return domain.ErrMarketClosed
	}
	if market.IsExpired(m, now) {
		return domain.ErrMarketExpired
	}
	return nil
}

func requireKind(m *domain.Market, kind domain.MarketKind, op string) error {
	if m.Kind != kind {
		return fmt.Errorf("%w: %s on %s market", domain.ErrWrongMarketKind, op, m.Kind)
	}
	return nil
}
