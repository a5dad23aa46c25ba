package memory

import (
	"context"
	"sort"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// marketStore implements storage.MarketStore inside a transaction.
type marketStore struct {
	t *txn
}

// Insert adds a new market. Returns ErrDuplicateKey if exists.
func (s marketStore) Insert(_ context.Context, m *domain.Market) error {
	if m == nil || m.Address == "" {
		return storage.ErrInvalidInput
	}
	if _, exists := s.t.market(m.Address); exists {
		return storage.ErrDuplicateKey
	}

	m.Version = 1
	s.t.markets[m.Address] = cloneMarket(m)
	return nil
}

// GetByAddress retrieves a market by address.
func (s marketStore) GetByAddress(_ context.Context, address string) (*domain.Market, error) {
	m, ok := s.t.market(address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneMarket(m), nil
}

// Update saves m if its version is current.
func (s marketStore) Update(_ context.Context, m *domain.Market) error {
	if m == nil || m.Address == "" {
		return storage.ErrInvalidInput
	}
	stored, ok := s.t.market(m.Address)
	if !ok {
		return storage.ErrNotFound
	}
	if stored.Version != m.Version {
		return storage.ErrVersionConflict
	}

	m.Version++
	s.t.markets[m.Address] = cloneMarket(m)
	return nil
}

// List retrieves all markets ordered by created_at ASC.
func (s marketStore) List(_ context.Context) ([]*domain.Market, error) {
	seen := make(map[string]struct{})
	var result []*domain.Market
	for addr, m := range s.t.markets {
		seen[addr] = struct{}{}
		result = append(result, cloneMarket(m))
	}
	for addr, m := range s.t.store.markets {
		if _, ok := seen[addr]; !ok {
			result = append(result, cloneMarket(m))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address < result[j].Address
	})
	return result, nil
}

// cloneMarket deep-copies the optional resolution fields.
func cloneMarket(m *domain.Market) *domain.Market {
	c := *m
	if m.Resolution != nil {
		r := *m.Resolution
		c.Resolution = &r
	}
	if m.ResolvedAt != nil {
		at := *m.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

var _ storage.MarketStore = marketStore{}
