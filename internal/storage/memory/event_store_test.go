package memory

import (
	"context"
	"errors"
	"testing"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

func TestEventStore_InsertBulkAndGet(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	outcome := true
	events := []*domain.Event{
		{EventID: "e2", Type: domain.EventMarketResolved, Market: "m1", Sequence: 3, Timestamp: 2000, Outcome: &outcome},
		{EventID: "e1", Type: domain.EventBetPlaced, Market: "m1", Sequence: 2, Timestamp: 1000, Amount: 10},
		{EventID: "e3", Type: domain.EventBetPlaced, Market: "m2", Sequence: 2, Timestamp: 1500},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("GetByMarket failed: %v", err)
	}
	if len(got) != 2 || got[0].EventID != "e1" || got[1].EventID != "e2" {
		t.Fatalf("unexpected events: %+v", got)
	}
	if got[1].Outcome == nil || !*got[1].Outcome {
		t.Errorf("outcome lost: %+v", got[1])
	}

	ranged, err := store.GetByTimeRange(ctx, "m1", 1500, 2000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(ranged) != 1 || ranged[0].EventID != "e2" {
		t.Errorf("unexpected ranged events: %+v", ranged)
	}
}

func TestEventStore_BatchIsAtomic(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.Event{{EventID: "e1", Market: "m1"}}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.Event{
		{EventID: "e2", Market: "m1"},
		{EventID: "e1", Market: "m1"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	err = store.InsertBulk(ctx, []*domain.Event{
		{EventID: "e3", Market: "m1"},
		{EventID: "e3", Market: "m1"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	got, _ := store.GetByMarket(ctx, "m1")
	if len(got) != 1 {
		t.Errorf("Expected 1 event after failed batches, got %d", len(got))
	}
}
