// Package events delivers committed market events to their consumers:
// the journal, the WebSocket relay, Kafka and Redis.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// Sink receives events after the operation that produced them committed.
type Sink interface {
	Publish(ctx context.Context, events []*domain.Event) error
}

// Fanout publishes to every sink. A failing sink does not stop the others.
type Fanout struct {
	sinks []namedSink
	log   zerolog.Logger
}

type namedSink struct {
	name string
	sink Sink
}

// NewFanout creates an empty Fanout. Add sinks with With.
func NewFanout(log zerolog.Logger) *Fanout {
	return &Fanout{log: log.With().Str("component", "events").Logger()}
}

// With registers sink under name and returns f.
func (f *Fanout) With(name string, sink Sink) *Fanout {
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
	return f
}

// Publish hands events to every sink and joins their errors.
func (f *Fanout) Publish(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Publish(ctx, events); err != nil {
			f.log.Warn().Err(err).Str("sink", s.name).Int("events", len(events)).Msg("publish failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Journal appends events to an EventStore.
type Journal struct {
	store storage.EventStore
}

// NewJournal creates a sink writing to store.
func NewJournal(store storage.EventStore) *Journal {
	return &Journal{store: store}
}

// Publish inserts events as one batch.
func (j *Journal) Publish(ctx context.Context, events []*domain.Event) error {
	if err := j.store.InsertBulk(ctx, events); err != nil {
		return fmt.Errorf("journal events: %w", err)
	}
	return nil
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*domain.Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends events.
func (r *Recorder) Publish(_ context.Context, events []*domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Events returns a snapshot of everything published so far.
func (r *Recorder) Events() []*domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t domain.EventType) []*domain.Event {
	var out []*domain.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Discard drops every event.
type Discard struct{}

// Publish does nothing.
func (Discard) Publish(context.Context, []*domain.Event) error { return nil }

var (
	_ Sink = (*Fanout)(nil)
	_ Sink = (*Journal)(nil)
	_ Sink = (*Recorder)(nil)
	_ Sink = Discard{}
)
