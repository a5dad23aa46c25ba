package engine

import (
	"context"
	"fmt"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// GetMarket returns a market by address.
func (e *Engine) GetMarket(ctx context.Context, addr string) (*domain.Market, error) {
	var m *domain.Market
	err := e.read(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		m, err = loadMarket(ctx, tx, addr)
		return err
	})
	return m, err
}

// MarketAddress derives the address of marketID.
func (e *Engine) MarketAddress(marketID string) (string, error) {
	return e.addr.Market(marketID)
}

// VaultAddress derives the ledger account holding a market's value.
func (e *Engine) VaultAddress(market string) (string, error) {
	return e.addr.Vault(market)
}

// ListMarkets returns every market, oldest first.
func (e *Engine) ListMarkets(ctx context.Context) ([]*domain.Market, error) {
	var ms []*domain.Market
	err := e.read(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		ms, err = tx.Markets().List(ctx)
		return err
	})
	return ms, err
}

// GetPool returns the pool of an AMM market.
func (e *Engine) GetPool(ctx context.Context, market string) (*domain.LiquidityPool, error) {
	var p *domain.LiquidityPool
	err := e.read(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		p, err = loadPool(ctx, tx, market)
		return err
	})
	return p, err
}

// GetPosition returns owner's position in market.
func (e *Engine) GetPosition(ctx context.Context, owner, market string) (*domain.Position, error) {
	var p *domain.Position
	err := e.read(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		p, err = e.existingPosition(ctx, tx, owner, market)
		return err
	})
	return p, err
}

// PositionsByOwner returns every position of owner, oldest first.
func (e *Engine) PositionsByOwner(ctx context.Context, owner string) ([]*domain.Position, error) {
	var ps []*domain.Position
	err := e.read(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		ps, err = tx.Positions().GetByOwner(ctx, owner)
		return err
	})
	return ps, err
}

// PositionsByMarket returns every position in market, oldest first.
func (e *Engine) PositionsByMarket(ctx context.Context, market string) ([]*domain.Position, error) {
	var ps []*domain.Position
	err := e.read(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		ps, err = tx.Positions().GetByMarket(ctx, market)
		return err
	})
	return ps, err
}

// Balance returns the ledger balance of account.
func (e *Engine) Balance(ctx context.Context, account string) (uint64, error) {
	var b uint64
	err := e.read(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		b, err = tx.Ledger().Balance(ctx, account)
		return err
	})
	return b, err
}

// Fund credits amount to account and returns the new balance.
func (e *Engine) Fund(ctx context.Context, account string, amount uint64) (uint64, error) {
	if err := requireCaller(account); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, domain.ErrInvalidAmount
	}

	var b uint64
	err := e.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Ledger().Credit(ctx, account, amount); err != nil {
			return fmt.Errorf("credit %s: %w", account, err)
		}
		var err error
		b, err = tx.Ledger().Balance(ctx, account)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.log.Debug().Str("account", account).Uint64("amount", amount).Msg("account funded")
	return b, nil
}
