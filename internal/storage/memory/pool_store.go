package memory

import (
	"context"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// poolStore implements storage.PoolStore inside a transaction.
type poolStore struct {
	t *txn
}

// Insert adds a new pool. Returns ErrDuplicateKey if the market has one.
func (s poolStore) Insert(_ context.Context, p *domain.LiquidityPool) error {
	if p == nil || p.Market == "" {
		return storage.ErrInvalidInput
	}
	if _, exists := s.t.pool(p.Market); exists {
		return storage.ErrDuplicateKey
	}

	p.Version = 1
	c := *p
	s.t.pools[p.Market] = &c
	return nil
}

// GetByMarket retrieves the pool of a market.
func (s poolStore) GetByMarket(_ context.Context, market string) (*domain.LiquidityPool, error) {
	p, ok := s.t.pool(market)
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *p
	return &c, nil
}

// Update saves p if its version is current.
func (s poolStore) Update(_ context.Context, p *domain.LiquidityPool) error {
	if p == nil || p.Market == "" {
		return storage.ErrInvalidInput
	}
	stored, ok := s.t.pool(p.Market)
	if !ok {
		return storage.ErrNotFound
	}
	if stored.Version != p.Version {
		return storage.ErrVersionConflict
	}

	p.Version++
	c := *p
	s.t.pools[p.Market] = &c
	return nil
}

var _ storage.PoolStore = poolStore{}
