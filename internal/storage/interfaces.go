package storage

import (
	"context"

	"prediction-market-amm/internal/domain"
)

// Store runs record reads and writes in transactions.
type Store interface {
	// WithTx runs fn in one transaction. Writes made through tx are committed
	// only if fn returns nil; otherwise none of them become visible.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the record stores and the value ledger inside one transaction.
type Tx interface {
	Markets() MarketStore
	Pools() PoolStore
	Positions() PositionStore
	Ledger() Ledger
}

// MarketStore provides access to markets storage.
type MarketStore interface {
	// Insert adds a new market and sets its Version to 1.
	// Returns ErrDuplicateKey if address exists.
	Insert(ctx context.Context, m *domain.Market) error

	// GetByAddress retrieves a market. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Market, error)

	// Update saves m if its Version matches the stored one and increments it.
	// Returns ErrVersionConflict on a stale version, ErrNotFound if not exists.
	Update(ctx context.Context, m *domain.Market) error

	// List retrieves all markets, ordered by created_at ASC.
	List(ctx context.Context) ([]*domain.Market, error)
}

// PoolStore provides access to liquidity_pools storage.
type PoolStore interface {
	// Insert adds a new pool and sets its Version to 1.
	// Returns ErrDuplicateKey if a pool exists for the market.
	Insert(ctx context.Context, p *domain.LiquidityPool) error

	// GetByMarket retrieves the pool of a market. Returns ErrNotFound if not exists.
	GetByMarket(ctx context.Context, market string) (*domain.LiquidityPool, error)

	// Update saves p with the same version rules as MarketStore.Update.
	Update(ctx context.Context, p *domain.LiquidityPool) error
}

// PositionStore provides access to positions storage.
type PositionStore interface {
	// Insert adds a new position and sets its Version to 1.
	// Returns ErrDuplicateKey if address exists.
	Insert(ctx context.Context, p *domain.Position) error

	// GetByAddress retrieves a position. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Position, error)

	// Update saves p with the same version rules as MarketStore.Update.
	Update(ctx context.Context, p *domain.Position) error

	// GetByMarket retrieves all positions of a market, ordered by created_at ASC.
	GetByMarket(ctx context.Context, market string) ([]*domain.Position, error)

	// GetByOwner retrieves all positions of an owner, ordered by created_at ASC.
	GetByOwner(ctx context.Context, owner string) ([]*domain.Position, error)
}

// Ledger holds account balances. Transfers inside a transaction commit
// or roll back together with the record writes.
type Ledger interface {
	// Balance returns the balance of account, zero if never credited.
	Balance(ctx context.Context, account string) (uint64, error)

	// Credit adds amount to account.
	Credit(ctx context.Context, account string, amount uint64) error

	// Transfer moves amount from one account to another.
	// Returns domain.ErrInsufficientFunds if from cannot cover it.
	Transfer(ctx context.Context, from, to string, amount uint64) error
}

// EventStore provides access to the append-only market_events journal.
type EventStore interface {
	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate event_id.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// GetByMarket retrieves all events of a market, ordered by timestamp, then sequence ASC.
	GetByMarket(ctx context.Context, market string) ([]*domain.Event, error)

	// GetByTimeRange retrieves events of a market within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, market string, start, end int64) ([]*domain.Event, error)
}
