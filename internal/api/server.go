// Package api exposes the engine over HTTP.
//
// Mutating routes require a signed request (see package auth); the verified
// public key is the caller. Reads are public. Every request passes the
// per-host rate limiter first.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"prediction-market-amm/internal/auth"
	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/engine"
	"prediction-market-amm/internal/observability"
)

// Engine is the subset of *engine.Engine the API dispatches to.
type Engine interface {
	CreateMarket(ctx context.Context, caller string, req engine.CreateMarketRequest) (*domain.Market, error)
	PlaceBet(ctx context.Context, caller, market string, amount uint64, side domain.Side) (*domain.Position, error)
	ResolveMarket(ctx context.Context, caller, market string, outcome bool) (*domain.Market, error)
	Claim(ctx context.Context, caller, market string) (*domain.Position, error)
	AddLiquidity(ctx context.Context, caller, market string, amount uint64) (*engine.LiquidityReceipt, error)
	RemoveLiquidity(ctx context.Context, caller, market string, shares uint64) (*engine.LiquidityReceipt, error)
	Buy(ctx context.Context, caller, market string, req engine.TradeRequest) (*engine.TradeReceipt, error)
	Swap(ctx context.Context, caller, market string, req engine.TradeRequest) (*engine.TradeReceipt, error)
	SetPoolActive(ctx context.Context, caller, market string, active bool) (*domain.LiquidityPool, error)
	UpdateFeeRate(ctx context.Context, caller, market string, rate uint16) (*domain.LiquidityPool, error)
	CollectFees(ctx context.Context, caller, market string) (uint64, error)
	QuoteSwap(ctx context.Context, market string, dir domain.SwapDirection, amount uint64) (*engine.SwapQuote, error)
	Quote(ctx context.Context, market string, side domain.Side, amount uint64) (*engine.Quote, error)
	GetMarket(ctx context.Context, market string) (*domain.Market, error)
	ListMarkets(ctx context.Context) ([]*domain.Market, error)
	GetPool(ctx context.Context, market string) (*domain.LiquidityPool, error)
	GetPosition(ctx context.Context, owner, market string) (*domain.Position, error)
	PositionsByOwner(ctx context.Context, owner string) ([]*domain.Position, error)
	Balance(ctx context.Context, account string) (uint64, error)
	Fund(ctx context.Context, account string, amount uint64) (uint64, error)
}

// Options for creating a Server.
type Options struct {
	Engine   Engine
	Verifier *auth.Verifier // nil trusts the X-PM-Key header without a signature
	AdminKey string         // caller allowed to fund accounts; empty disables funding

	RateLimit rate.Limit // per caller; zero disables limiting
	Burst     int

	WebSocket http.Handler // mounted at /ws when set
	Metrics   *observability.Metrics
	Logger    *zerolog.Logger
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine   Engine
	verifier *auth.Verifier
	adminKey string
	limiters *limiters
	metrics  *observability.Metrics
	log      zerolog.Logger
	router   *mux.Router
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	s := &Server{
		engine:   opts.Engine,
		verifier: opts.Verifier,
		adminKey: opts.AdminKey,
		metrics:  opts.Metrics,
		log:      zerolog.Nop(),
		router:   mux.NewRouter(),
	}
	if opts.RateLimit > 0 {
		s.limiters = newLimiters(opts.RateLimit, opts.Burst, 10*time.Minute)
	}
	if s.metrics == nil {
		s.metrics = observability.NewNopMetrics()
	}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "api").Logger()
	}

	s.routes(opts.WebSocket)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(ws http.Handler) {
	r := s.router
	r.Use(s.requestID, s.instrument, s.rateLimit)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	if ws != nil {
		r.Handle("/ws", ws)
	}

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/markets", s.listMarkets).Methods(http.MethodGet)
	v1.Handle("/markets", s.signed(s.createMarket)).Methods(http.MethodPost)

	m := v1.PathPrefix("/markets/{market}").Subrouter()
	m.HandleFunc("", s.getMarket).Methods(http.MethodGet)
	m.HandleFunc("/pool", s.getPool).Methods(http.MethodGet)
	m.HandleFunc("/quote", s.quote).Methods(http.MethodGet)
	m.HandleFunc("/quote-swap", s.quoteSwap).Methods(http.MethodGet)
	m.HandleFunc("/positions/{owner}", s.getPosition).Methods(http.MethodGet)
	m.Handle("/bets", s.signed(s.placeBet)).Methods(http.MethodPost)
	m.Handle("/resolve", s.signed(s.resolve)).Methods(http.MethodPost)
	m.Handle("/claim", s.signed(s.claim)).Methods(http.MethodPost)
	m.Handle("/liquidity", s.signed(s.addLiquidity)).Methods(http.MethodPost)
	m.Handle("/liquidity/remove", s.signed(s.removeLiquidity)).Methods(http.MethodPost)
	m.Handle("/buy", s.signed(s.buy)).Methods(http.MethodPost)
	m.Handle("/swap", s.signed(s.swap)).Methods(http.MethodPost)
	m.Handle("/pool/active", s.signed(s.setPoolActive)).Methods(http.MethodPost)
	m.Handle("/pool/fee-rate", s.signed(s.updateFeeRate)).Methods(http.MethodPost)
	m.Handle("/pool/collect-fees", s.signed(s.collectFees)).Methods(http.MethodPost)

	a := v1.PathPrefix("/accounts/{account}").Subrouter()
	a.HandleFunc("/balance", s.balance).Methods(http.MethodGet)
	a.HandleFunc("/positions", s.positions).Methods(http.MethodGet)
	a.Handle("/fund", s.signed(s.fund)).Methods(http.MethodPost)
}
