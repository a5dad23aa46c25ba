package engine

import (
	"context"
	"fmt"

	"prediction-market-amm/internal/amm"
	"prediction-market-amm/internal/domain"
	fp "prediction-market-amm/internal/fixedpoint"
	"prediction-market-amm/internal/market"
	"prediction-market-amm/internal/storage"
)

// LiquidityReceipt is the result of adding or removing liquidity.
type LiquidityReceipt struct {
	Shares    uint64 // minted or burned
	YesAmount uint64 // tokens returned on removal
	NoAmount  uint64
	Pool      *domain.LiquidityPool
	Position  *domain.Position
}

// TradeRequest describes a Buy or a Swap. Side selects the token bought;
// Direction the swap. MinOutput of zero disables the slippage guard.
type TradeRequest struct {
	Side      domain.Side          `json:"side,omitempty"`
	Direction domain.SwapDirection `json:"direction,omitempty"`
	Amount    uint64               `json:"amount"`
	MinOutput uint64               `json:"min_output,omitempty"`
}

// TradeReceipt is the result of a Buy or a Swap.
type TradeReceipt struct {
	Input    uint64
	Output   uint64 // tokens credited to the caller
	Fee      uint64
	Pool     *domain.LiquidityPool
	Position *domain.Position
}

// AddLiquidity deposits amount of collateral into an open AMM market's pool
// and credits the minted liquidity shares to the caller's position.
func (e *Engine) AddLiquidity(ctx context.Context, caller, marketAddr string, amount uint64) (*LiquidityReceipt, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var r LiquidityReceipt
	err := e.execute(ctx, "add_liquidity", marketAddr, caller, func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error) {
		m, p, err := loadAMM(ctx, tx, marketAddr, "add_liquidity")
		if err != nil {
			return nil, err
		}
		if err := requireOpen(m, now); err != nil {
			return nil, err
		}

		shares, err := amm.ProvideLiquidity(p, amount)
		if err != nil {
			return nil, err
		}
		pos, err := e.position(ctx, tx, caller, m.Address, now)
		if err != nil {
			return nil, err
		}
		if pos.LiquidityShares, err = fp.Add(pos.LiquidityShares, shares); err != nil {
			return nil, err
		}
		pos.UpdatedAt = now

		if err := e.toVault(ctx, tx, caller, m.Address, amount); err != nil {
			return nil, err
		}
		if err := tx.Pools().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("save pool: %w", err)
		}
		if err := savePosition(ctx, tx, pos); err != nil {
			return nil, err
		}
		r = LiquidityReceipt{Shares: shares, Pool: p, Position: pos}

		ev := poolEvent(domain.EventLiquidityAdded, p, caller, now)
		ev.Amount = amount
		ev.Shares = shares
		return []*domain.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.VolumeTotal.WithLabelValues("add_liquidity", "both").Add(float64(amount))
	e.observePool(r.Pool)
	return &r, nil
}

// RemoveLiquidity burns shares held by the caller and credits the returned
// outcome tokens to the position. It stays available after resolution so
// liquidity providers can redeem the winning side.
func (e *Engine) RemoveLiquidity(ctx context.Context, caller, marketAddr string, shares uint64) (*LiquidityReceipt, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var r LiquidityReceipt
	err := e.execute(ctx, "remove_liquidity", marketAddr, caller, func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error) {
		m, p, err := loadAMM(ctx, tx, marketAddr, "remove_liquidity")
		if err != nil {
			return nil, err
		}
		pos, err := e.existingPosition(ctx, tx, caller, m.Address)
		if err != nil {
			return nil, err
		}
		if pos.Claimed {
			return nil, domain.ErrAlreadyClaimed
		}
		if pos.LiquidityShares < shares {
			return nil, fmt.Errorf("%w: holds %d shares, burning %d",
				domain.ErrInsufficientLiquidity, pos.LiquidityShares, shares)
		}

		yes, no, err := amm.RemoveLiquidity(p, shares)
		if err != nil {
			return nil, err
		}
		if pos.YesTokens, err = fp.Add(pos.YesTokens, yes); err != nil {
			return nil, err
		}
		if pos.NoTokens, err = fp.Add(pos.NoTokens, no); err != nil {
			return nil, err
		}
		pos.LiquidityShares -= shares
		pos.UpdatedAt = now

		if err := tx.Pools().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("save pool: %w", err)
		}
		if err := savePosition(ctx, tx, pos); err != nil {
			return nil, err
		}
		r = LiquidityReceipt{Shares: shares, YesAmount: yes, NoAmount: no, Pool: p, Position: pos}

		ev := poolEvent(domain.EventLiquidityRemoved, p, caller, now)
		ev.Shares = shares
		ev.YesAmount = yes
		ev.NoAmount = no
		return []*domain.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}

	e.observePool(r.Pool)
	return &r, nil
}

// Buy spends req.Amount of collateral on req.Side tokens: it mints complete
// sets and sells the unwanted side into the pool. The bet range and the
// lifecycle rules of place_bet apply, and the market's side total grows by
// the amount spent.
func (e *Engine) Buy(ctx context.Context, caller, marketAddr string, req TradeRequest) (*TradeReceipt, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var r TradeReceipt
	err := e.execute(ctx, "buy", marketAddr, caller, func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error) {
		m, p, err := loadAMM(ctx, tx, marketAddr, "buy")
		if err != nil {
			return nil, err
		}
		if err := market.PlaceBet(m, req.Amount, req.Side, now); err != nil {
			return nil, err
		}

		res, err := amm.Buy(p, req.Amount, req.Side)
		if err != nil {
			return nil, err
		}
		if res.Tokens < req.MinOutput {
			return nil, fmt.Errorf("%w: %d %s tokens, wanted at least %d",
				domain.ErrSlippageExceeded, res.Tokens, req.Side, req.MinOutput)
		}

		pos, err := e.position(ctx, tx, caller, m.Address, now)
		if err != nil {
			return nil, err
		}
		held, err := fp.Add(pos.Tokens(req.Side), res.Tokens)
		if err != nil {
			return nil, err
		}
		pos.SetTokens(req.Side, held)
		pos.UpdatedAt = now

		if err := e.toVault(ctx, tx, caller, m.Address, req.Amount); err != nil {
			return nil, err
		}
		if err := tx.Markets().Update(ctx, m); err != nil {
			return nil, fmt.Errorf("save market: %w", err)
		}
		if err := tx.Pools().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("save pool: %w", err)
		}
		if err := savePosition(ctx, tx, pos); err != nil {
			return nil, err
		}
		r = TradeReceipt{Input: req.Amount, Output: res.Tokens, Fee: res.Swap.Fee, Pool: p, Position: pos}

		ev := poolEvent(domain.EventSharesBought, p, caller, now)
		ev.Side = req.Side
		ev.Amount = req.Amount
		ev.AmountOut = res.Tokens
		ev.Fee = res.Swap.Fee
		return []*domain.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.VolumeTotal.WithLabelValues("buy", string(req.Side)).Add(float64(req.Amount))
	e.observePool(r.Pool)
	return &r, nil
}

// Swap trades req.Amount of the caller's input-side tokens for the other
// side through the pool.
func (e *Engine) Swap(ctx context.Context, caller, marketAddr string, req TradeRequest) (*TradeReceipt, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !req.Direction.Valid() {
		return nil, fmt.Errorf("%w: swap direction %q", domain.ErrValidation, req.Direction)
	}

	var r TradeReceipt
	err := e.execute(ctx, "swap", marketAddr, caller, func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error) {
		m, p, err := loadAMM(ctx, tx, marketAddr, "swap")
		if err != nil {
			return nil, err
		}
		if err := requireOpen(m, now); err != nil {
			return nil, err
		}
		pos, err := e.existingPosition(ctx, tx, caller, m.Address)
		if err != nil {
			return nil, err
		}
		in, out := req.Direction.Input(), req.Direction.Output()
		if held := pos.Tokens(in); held < req.Amount {
			return nil, fmt.Errorf("%w: holds %d %s tokens, swapping %d",
				domain.ErrInsufficientFunds, held, in, req.Amount)
		}

		q, err := amm.ExecuteSwap(p, req.Amount, req.Direction)
		if err != nil {
			return nil, err
		}
		if q.Output < req.MinOutput {
			return nil, fmt.Errorf("%w: %d %s tokens, wanted at least %d",
				domain.ErrSlippageExceeded, q.Output, out, req.MinOutput)
		}
		received, err := fp.Add(pos.Tokens(out), q.Output)
		if err != nil {
			return nil, err
		}
		pos.SetTokens(in, pos.Tokens(in)-req.Amount)
		pos.SetTokens(out, received)
		pos.UpdatedAt = now

		if err := tx.Pools().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("save pool: %w", err)
		}
		if err := savePosition(ctx, tx, pos); err != nil {
			return nil, err
		}
		r = TradeReceipt{Input: req.Amount, Output: q.Output, Fee: q.Fee, Pool: p, Position: pos}

		ev := poolEvent(domain.EventSwapExecuted, p, caller, now)
		ev.Direction = req.Direction
		ev.Amount = req.Amount
		ev.AmountOut = q.Output
		ev.Fee = q.Fee
		return []*domain.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.VolumeTotal.WithLabelValues("swap", string(req.Direction.Input())).Add(float64(req.Amount))
	e.observePool(r.Pool)
	return &r, nil
}

// SetPoolActive deactivates or reactivates a pool. Pool authority only.
func (e *Engine) SetPoolActive(ctx context.Context, caller, marketAddr string, active bool) (*domain.LiquidityPool, error) {
	evType := domain.EventPoolDeactivated
	if active {
		evType = domain.EventPoolReactivated
	}
	return e.administer(ctx, "set_pool_active", caller, marketAddr, func(p *domain.LiquidityPool) (*domain.Event, error) {
		if active {
			amm.Reactivate(p)
		} else {
			amm.Deactivate(p)
		}
		return &domain.Event{Type: evType}, nil
	})
}

// UpdateFeeRate replaces the pool's swap fee. Pool authority only.
func (e *Engine) UpdateFeeRate(ctx context.Context, caller, marketAddr string, rate uint16) (*domain.LiquidityPool, error) {
	return e.administer(ctx, "update_fee_rate", caller, marketAddr, func(p *domain.LiquidityPool) (*domain.Event, error) {
		if err := amm.UpdateFeeRate(p, rate); err != nil {
			return nil, err
		}
		return &domain.Event{Type: domain.EventFeeRateUpdated, FeeRate: rate}, nil
	})
}

// CollectFees moves the fee tokens withheld by swaps out of the pool and into
// the authority's position, where they redeem like any other outcome tokens
// once the market resolves. Returns the total collected. Pool authority only.
func (e *Engine) CollectFees(ctx context.Context, caller, marketAddr string) (uint64, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}

	var fees amm.CollectedFees
	err := e.execute(ctx, "collect_fees", marketAddr, caller, func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error) {
		m, p, err := loadAMM(ctx, tx, marketAddr, "collect_fees")
		if err != nil {
			return nil, err
		}
		if err := requireAuthority(p, caller); err != nil {
			return nil, err
		}

		fees = amm.CollectFees(p)
		if fees.Total() > 0 {
			pos, err := e.position(ctx, tx, p.Authority, m.Address, now)
			if err != nil {
				return nil, err
			}
			if pos.Claimed {
				return nil, fmt.Errorf("%w: fees would land in a settled position", domain.ErrAlreadyClaimed)
			}
			if pos.YesTokens, err = fp.Add(pos.YesTokens, fees.Yes); err != nil {
				return nil, err
			}
			if pos.NoTokens, err = fp.Add(pos.NoTokens, fees.No); err != nil {
				return nil, err
			}
			pos.UpdatedAt = now
			if err := savePosition(ctx, tx, pos); err != nil {
				return nil, err
			}
		}
		if err := tx.Pools().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("save pool: %w", err)
		}

		ev := poolEvent(domain.EventFeesCollected, p, caller, now)
		ev.Fee = fees.Total()
		ev.YesAmount = fees.Yes
		ev.NoAmount = fees.No
		return []*domain.Event{ev}, nil
	})
	if err != nil {
		return 0, err
	}
	e.metrics.FeesCollected.Add(float64(fees.Total()))
	return fees.Total(), nil
}

func requireAuthority(p *domain.LiquidityPool, caller string) error {
	if caller != p.Authority {
		return fmt.Errorf("%w: %s is not the pool authority", domain.ErrUnauthorized, caller)
	}
	return nil
}

// administer runs an authority-only pool change. change returns a partial
// event carrying the type and payload fields.
func (e *Engine) administer(ctx context.Context, op, caller, marketAddr string,
	change func(p *domain.LiquidityPool) (*domain.Event, error),
) (*domain.LiquidityPool, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var pool *domain.LiquidityPool
	err := e.execute(ctx, op, marketAddr, caller, func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error) {
		_, p, err := loadAMM(ctx, tx, marketAddr, op)
		if err != nil {
			return nil, err
		}
		if err := requireAuthority(p, caller); err != nil {
			return nil, err
		}
		partial, err := change(p)
		if err != nil {
			return nil, err
		}
		if err := tx.Pools().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("save pool: %w", err)
		}
		pool = p

		ev := poolEvent(partial.Type, p, caller, now)
		ev.FeeRate = partial.FeeRate
		return []*domain.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func loadAMM(ctx context.Context, tx storage.Tx, marketAddr, op string) (*domain.Market, *domain.LiquidityPool, error) {
	m, err := loadMarket(ctx, tx, marketAddr)
	if err != nil {
		return nil, nil, err
	}
	if err := requireKind(m, domain.KindAMM, op); err != nil {
		return nil, nil, err
	}
	p, err := loadPool(ctx, tx, m.Address)
	if err != nil {
		return nil, nil, err
	}
	return m, p, nil
}
