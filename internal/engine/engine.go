// Package engine runs market operations end to end.
//
// Every mutating operation follows the same flow:
//
//	lock(market) → WithTx(load → core op → ledger → save) → unlock → publish events
//
// Core functions from market, amm and settlement compute on copies loaded
// from the store, so a rejected operation never reaches Update. Events are
// handed to the sink only after the transaction committed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"prediction-market-amm/internal/address"
	"prediction-market-amm/internal/amm"
	"prediction-market-amm/internal/clock"
	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/events"
	"prediction-market-amm/internal/idhash"
	"prediction-market-amm/internal/lock"
	"prediction-market-amm/internal/observability"
	"prediction-market-amm/internal/pricing"
	"prediction-market-amm/internal/storage"
)

// Engine executes market operations against a Store.
type Engine struct {
	store   storage.Store
	locker  lock.Locker
	sink    events.Sink
	clock   clock.Clock
	addr    *address.Deriver
	pricing pricing.Params
	feeRate uint16
	metrics *observability.Metrics
	log     zerolog.Logger
}

// Options for creating an Engine.
type Options struct {
	// Required
	Store   storage.Store
	Deriver *address.Deriver

	// Optional; zero values fall back to in-process defaults
	Locker         lock.Locker            // default lock.NewMemory()
	Sink           events.Sink            // default events.Discard{}
	Clock          clock.Clock            // default clock.System{}
	Pricing        *pricing.Params        // default pricing.DefaultParams()
	DefaultFeeRate uint16                 // pool fee rate when CreateMarket leaves it unset
	Metrics        *observability.Metrics // default observability.NewNopMetrics()
	Logger         *zerolog.Logger        // default zerolog.Nop()
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if opts.Deriver == nil {
		return nil, errors.New("engine: address deriver is required")
	}
	if opts.DefaultFeeRate > domain.MaxFeeRate {
		return nil, fmt.Errorf("engine: default fee rate: %w", domain.ErrFeeTooHigh)
	}

	e := &Engine{
		store:   opts.Store,
		addr:    opts.Deriver,
		locker:  opts.Locker,
		sink:    opts.Sink,
		clock:   opts.Clock,
		feeRate: opts.DefaultFeeRate,
		metrics: opts.Metrics,
		log:     zerolog.Nop(),
	}
	if e.locker == nil {
		e.locker = lock.NewMemory()
	}
	if e.sink == nil {
		e.sink = events.Discard{}
	}
	if e.clock == nil {
		e.clock = clock.System{}
	}
	if opts.Pricing != nil {
		e.pricing = *opts.Pricing
	} else {
		e.pricing = pricing.DefaultParams()
	}
	if e.metrics == nil {
		e.metrics = observability.NewNopMetrics()
	}
	if opts.Logger != nil {
		e.log = opts.Logger.With().Str("component", "engine").Logger()
	}
	return e, nil
}

// txFunc runs inside the market's lock and transaction and returns the
// events describing what it changed.
type txFunc func(ctx context.Context, tx storage.Tx, now int64) ([]*domain.Event, error)

// execute locks market, runs fn in one transaction and publishes its events
// after commit.
func (e *Engine) execute(ctx context.Context, op, market, caller string, fn txFunc) error {
	started := time.Now()

	evs, err := e.commit(ctx, market, fn)
	if err != nil {
		kind := KindOf(err)
		e.metrics.ObserveOperation(op, string(kind), started)
		e.log.Info().Err(err).
			Str("operation", op).
			Str("market", market).
			Str("caller", caller).
			Str("error_kind", string(kind)).
			Msg("operation rejected")
		return err
	}

	e.metrics.ObserveOperation(op, "ok", started)
	e.log.Debug().
		Str("operation", op).
		Str("market", market).
		Str("caller", caller).
		Int("events", len(evs)).
		Dur("took", time.Since(started)).
		Msg("operation committed")

	e.publish(ctx, op, evs)
	return nil
}

func (e *Engine) commit(ctx context.Context, market string, fn txFunc) ([]*domain.Event, error) {
	unlock, err := e.locker.Lock(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("lock market %s: %w", market, err)
	}
	defer unlock()

	var evs []*domain.Event
	err = e.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		evs, err = fn(ctx, tx, e.clock.NowMs())
		return err
	})
	if err != nil {
		return nil, err
	}
	return evs, nil
}

// publish delivers committed events. Failures are logged and counted; the
// operation already committed and is not reported as failed.
func (e *Engine) publish(ctx context.Context, op string, evs []*domain.Event) {
	if len(evs) == 0 {
		return
	}
	if err := e.sink.Publish(context.WithoutCancel(ctx), evs); err != nil {
		e.metrics.EventPublishErrors.WithLabelValues(op).Inc()
		e.log.Warn().Err(err).Str("operation", op).Int("events", len(evs)).Msg("event delivery failed")
	}
	for _, ev := range evs {
		e.metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
	}
}

// read runs fn in a transaction without taking the market lock.
func (e *Engine) read(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return e.store.WithTx(ctx, fn)
}

// newEvent stamps the identity fields. seq is the version of the record the
// event describes, after the change.
func newEvent(t domain.EventType, market, actor string, seq, now int64) *domain.Event {
	return &domain.Event{
		EventID:   idhash.ComputeEventID(market, t, actor, seq),
		Type:      t,
		Market:    market,
		Actor:     actor,
		Sequence:  seq,
		Timestamp: now,
	}
}

// poolEvent is newEvent plus the pool's post-change reserves.
func poolEvent(t domain.EventType, p *domain.LiquidityPool, actor string, now int64) *domain.Event {
	ev := newEvent(t, p.Market, actor, p.Version, now)
	ev.YesReserves = p.YesReserves
	ev.NoReserves = p.NoReserves
	return ev
}

// observePool refreshes the pool gauges.
func (e *Engine) observePool(p *domain.LiquidityPool) {
	yes, err := amm.Price(p, domain.SideYes)
	if err != nil {
		e.metrics.SetPool(p.Market, p.YesReserves, p.NoReserves, 0, 0)
		return
	}
	no, err := amm.Price(p, domain.SideNo)
	if err != nil {
		e.metrics.SetPool(p.Market, p.YesReserves, p.NoReserves, 0, 0)
		return
	}
	e.metrics.SetPool(p.Market, p.YesReserves, p.NoReserves, yes, no)
}

func requireCaller(caller string) error {
	if caller == "" {
		return fmt.Errorf("%w: caller is required", domain.ErrValidation)
	}
	return nil
}
