package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prediction-market-amm/internal/storage"
)

// Store implements storage.Store on one PostgreSQL transaction per call.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// WithTx runs fn inside a READ COMMITTED transaction. Concurrent writers to
// the same record are caught by the version check in Update.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txn{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txn struct {
	q querier
}

func (t *txn) Markets() storage.MarketStore     { return &MarketStore{q: t.q} }
func (t *txn) Pools() storage.PoolStore         { return &PoolStore{q: t.q} }
func (t *txn) Positions() storage.PositionStore { return &PositionStore{q: t.q} }
func (t *txn) Ledger() storage.Ledger           { return &Ledger{q: t.q} }
