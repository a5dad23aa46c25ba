package memory

import (
	"context"
	"sync"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
// Transactions are serialized; writes are staged and applied on success.
type Store struct {
	mu        sync.Mutex
	markets   map[string]*domain.Market        // keyed by address
	pools     map[string]*domain.LiquidityPool // keyed by market address
	positions map[string]*domain.Position      // keyed by address
	balances  map[string]uint64                // keyed by account
}

// NewStore creates a new empty in-memory store.
func NewStore() *Store {
	return &Store{
		markets:   make(map[string]*domain.Market),
		pools:     make(map[string]*domain.LiquidityPool),
		positions: make(map[string]*domain.Position),
		balances:  make(map[string]uint64),
	}
}

// WithTx runs fn with exclusive access to the store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &txn{
		store:     s,
		markets:   make(map[string]*domain.Market),
		pools:     make(map[string]*domain.LiquidityPool),
		positions: make(map[string]*domain.Position),
		balances:  make(map[string]uint64),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// txn stages writes over the committed maps.
type txn struct {
	store     *Store
	markets   map[string]*domain.Market
	pools     map[string]*domain.LiquidityPool
	positions map[string]*domain.Position
	balances  map[string]uint64
}

func (t *txn) Markets() storage.MarketStore     { return marketStore{t} }
func (t *txn) Pools() storage.PoolStore         { return poolStore{t} }
func (t *txn) Positions() storage.PositionStore { return positionStore{t} }
func (t *txn) Ledger() storage.Ledger           { return ledger{t} }

func (t *txn) commit() {
	for k, v := range t.markets {
		t.store.markets[k] = v
	}
	for k, v := range t.pools {
		t.store.pools[k] = v
	}
	for k, v := range t.positions {
		t.store.positions[k] = v
	}
	for k, v := range t.balances {
		t.store.balances[k] = v
	}
}

func (t *txn) market(address string) (*domain.Market, bool) {
	if m, ok := t.markets[address]; ok {
		return m, true
	}
	m, ok := t.store.markets[address]
	return m, ok
}

func (t *txn) pool(market string) (*domain.LiquidityPool, bool) {
	if p, ok := t.pools[market]; ok {
		return p, true
	}
	p, ok := t.store.pools[market]
	return p, ok
}

func (t *txn) position(address string) (*domain.Position, bool) {
	if p, ok := t.positions[address]; ok {
		return p, true
	}
	p, ok := t.store.positions[address]
	return p, ok
}

func (t *txn) balance(account string) uint64 {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return t.store.balances[account]
}

var _ storage.Store = (*Store)(nil)
