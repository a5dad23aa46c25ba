package memory

import (
	"context"
	"sort"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// positionStore implements storage.PositionStore inside a transaction.
type positionStore struct {
	t *txn
}

// Insert adds a new position. Returns ErrDuplicateKey if exists.
func (s positionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.Address == "" || p.Owner == "" || p.Market == "" {
		return storage.ErrInvalidInput
	}
	if _, exists := s.t.position(p.Address); exists {
		return storage.ErrDuplicateKey
	}

	p.Version = 1
	c := *p
	s.t.positions[p.Address] = &c
	return nil
}

// GetByAddress retrieves a position by address.
func (s positionStore) GetByAddress(_ context.Context, address string) (*domain.Position, error) {
	p, ok := s.t.position(address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *p
	return &c, nil
}

// Update saves p if its version is current.
func (s positionStore) Update(_ context.Context, p *domain.Position) error {
	if p == nil || p.Address == "" {
		return storage.ErrInvalidInput
	}
	stored, ok := s.t.position(p.Address)
	if !ok {
		return storage.ErrNotFound
	}
	if stored.Version != p.Version {
		return storage.ErrVersionConflict
	}

	p.Version++
	c := *p
	s.t.positions[p.Address] = &c
	return nil
}

// GetByMarket retrieves all positions of a market ordered by created_at ASC.
func (s positionStore) GetByMarket(_ context.Context, market string) ([]*domain.Position, error) {
	return s.filter(func(p *domain.Position) bool { return p.Market == market }), nil
}

// GetByOwner retrieves all positions of an owner ordered by created_at ASC.
func (s positionStore) GetByOwner(_ context.Context, owner string) ([]*domain.Position, error) {
	return s.filter(func(p *domain.Position) bool { return p.Owner == owner }), nil
}

func (s positionStore) filter(keep func(*domain.Position) bool) []*domain.Position {
	seen := make(map[string]struct{})
	var result []*domain.Position
	for addr, p := range s.t.positions {
		seen[addr] = struct{}{}
		if keep(p) {
			c := *p
			result = append(result, &c)
		}
	}
	for addr, p := range s.t.store.positions {
		if _, ok := seen[addr]; ok || !keep(p) {
			continue
		}
		c := *p
		result = append(result, &c)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address < result[j].Address
	})
	return result
}

var _ storage.PositionStore = positionStore{}
