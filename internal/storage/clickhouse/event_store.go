package clickhouse

import (
	"context"
	"fmt"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// EventStore implements storage.EventStore on the market_events table.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `
	event_id, event_type, market, actor, sequence, timestamp, side, direction,
	outcome, amount, amount_out, yes_amount, no_amount, shares, fee, fee_rate,
	yes_reserves, no_reserves`

// InsertBulk adds events as one batch. MergeTree does not enforce keys, so
// duplicates are rejected up front, both within the batch and against stored rows.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || e.Market == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[e.EventID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	for _, e := range events {
		exists, err := s.exists(ctx, e.EventID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO market_events (`+eventColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.EventID, string(e.Type), e.Market, e.Actor, e.Sequence, e.Timestamp,
			string(e.Side), string(e.Direction), outcomeColumn(e.Outcome),
			e.Amount, e.AmountOut, e.YesAmount, e.NoAmount, e.Shares, e.Fee, e.FeeRate,
			e.YesReserves, e.NoReserves,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByMarket retrieves all events of a market ordered by timestamp, sequence ASC.
func (s *EventStore) GetByMarket(ctx context.Context, market string) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM market_events FINAL
		WHERE market = ?
		ORDER BY timestamp ASC, sequence ASC, event_id ASC`

	rows, err := s.conn.Query(ctx, query, market)
	if err != nil {
		return nil, fmt.Errorf("query by market: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events of a market within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, market string, start, end int64) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM market_events FINAL
		WHERE market = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, sequence ASC, event_id ASC`

	rows, err := s.conn.Query(ctx, query, market, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *EventStore) exists(ctx context.Context, eventID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM market_events WHERE event_id = ?`, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func outcomeColumn(outcome *bool) *uint8 {
	if outcome == nil {
		return nil
	}
	var v uint8
	if *outcome {
		v = 1
	}
	return &v
}

func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var (
			e                    domain.Event
			eventType, side, dir string
			outcome              *uint8
		)

		err := rows.Scan(
			&e.EventID, &eventType, &e.Market, &e.Actor, &e.Sequence, &e.Timestamp,
			&side, &dir, &outcome,
			&e.Amount, &e.AmountOut, &e.YesAmount, &e.NoAmount, &e.Shares, &e.Fee, &e.FeeRate,
			&e.YesReserves, &e.NoReserves,
		)
		if err != nil {
			return nil, fmt.Errorf("scan market event row: %w", err)
		}

		e.Type = domain.EventType(eventType)
		e.Side = domain.Side(side)
		e.Direction = domain.SwapDirection(dir)
		if outcome != nil {
			o := *outcome == 1
			e.Outcome = &o
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market event rows: %w", err)
	}

	return events, nil
}
