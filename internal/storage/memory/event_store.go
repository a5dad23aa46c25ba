package memory

import (
	"context"
	"sort"
	"sync"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Event // keyed by event_id
}

// NewEventStore creates a new in-memory event journal.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string]*domain.Event),
	}
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(events))

	// First pass: check for duplicates (existing + intra-batch)
	for _, e := range events {
		if e == nil || e.EventID == "" || e.Market == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.EventID] = struct{}{}
	}

	// Second pass: insert all
	for _, e := range events {
		s.data[e.EventID] = cloneEvent(e)
	}

	return nil
}

// GetByMarket retrieves all events of a market ordered by timestamp, sequence ASC.
func (s *EventStore) GetByMarket(_ context.Context, market string) ([]*domain.Event, error) {
	return s.collect(func(e *domain.Event) bool { return e.Market == market }), nil
}

// GetByTimeRange retrieves events of a market within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(_ context.Context, market string, start, end int64) ([]*domain.Event, error) {
	return s.collect(func(e *domain.Event) bool {
		return e.Market == market && e.Timestamp >= start && e.Timestamp <= end
	}), nil
}

func (s *EventStore) collect(keep func(*domain.Event) bool) []*domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if keep(e) {
			result = append(result, cloneEvent(e))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		if result[i].Sequence != result[j].Sequence {
			return result[i].Sequence < result[j].Sequence
		}
		return result[i].EventID < result[j].EventID
	})
	return result
}

func cloneEvent(e *domain.Event) *domain.Event {
	c := *e
	if e.Outcome != nil {
		o := *e.Outcome
		c.Outcome = &o
	}
	return &c
}

var _ storage.EventStore = (*EventStore)(nil)
