package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/engine"
)

// decode reads a JSON body into v, rejecting unknown fields. An empty body
// leaves v unchanged.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func queryUint(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: query %s=%q", errBadRequest, name, raw)
	}
	return v, nil
}

// respond writes v with status, or the mapped error.
func respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, v)
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	ms, err := s.engine.ListMarkets(r.Context())
	respond(w, http.StatusOK, ms, err)
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request, caller string) {
	var req engine.CreateMarketRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := s.engine.CreateMarket(r.Context(), caller, req)
	respond(w, http.StatusCreated, m, err)
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.GetMarket(r.Context(), mux.Vars(r)["market"])
	respond(w, http.StatusOK, m, err)
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.GetPool(r.Context(), mux.Vars(r)["market"])
	respond(w, http.StatusOK, p, err)
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := s.engine.GetPosition(r.Context(), vars["owner"], vars["market"])
	respond(w, http.StatusOK, p, err)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	side, err := domain.ParseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := queryUint(r, "amount")
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := s.engine.Quote(r.Context(), mux.Vars(r)["market"], side, amount)
	respond(w, http.StatusOK, q, err)
}

type swapQuoteBody struct {
	Direction        domain.SwapDirection `json:"direction"`
	Input            uint64               `json:"input"`
	Fee              uint64               `json:"fee"`
	Output           uint64               `json:"output"`
	NewInputReserve  uint64               `json:"new_input_reserve"`
	NewOutputReserve uint64               `json:"new_output_reserve"`
	YesPriceAfter    uint64               `json:"yes_price_after"`
	NoPriceAfter     uint64               `json:"no_price_after"`
}

func (s *Server) quoteSwap(w http.ResponseWriter, r *http.Request) {
	dir, err := domain.ParseSwapDirection(r.URL.Query().Get("direction"))
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := queryUint(r, "amount")
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := s.engine.QuoteSwap(r.Context(), mux.Vars(r)["market"], dir, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, swapQuoteBody{
		Direction:        q.Direction,
		Input:            q.Input,
		Fee:              q.Fee,
		Output:           q.Output,
		NewInputReserve:  q.NewInputReserve,
		NewOutputReserve: q.NewOutputReserve,
		YesPriceAfter:    q.YesPriceAfter,
		NoPriceAfter:     q.NoPriceAfter,
	})
}

type betRequest struct {
	Side   domain.Side `json:"side"`
	Amount uint64      `json:"amount"`
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request, caller string) {
	var req betRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.engine.PlaceBet(r.Context(), caller, mux.Vars(r)["market"], req.Amount, req.Side)
	respond(w, http.StatusOK, p, err)
}

type resolveRequest struct {
	Outcome *bool `json:"outcome"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, caller string) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Outcome == nil {
		writeError(w, fmt.Errorf("%w: outcome is required", errBadRequest))
		return
	}
	m, err := s.engine.ResolveMarket(r.Context(), caller, mux.Vars(r)["market"], *req.Outcome)
	respond(w, http.StatusOK, m, err)
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request, caller string) {
	p, err := s.engine.Claim(r.Context(), caller, mux.Vars(r)["market"])
	respond(w, http.StatusOK, p, err)
}

type liquidityRequest struct {
	Amount uint64 `json:"amount,omitempty"`
	Shares uint64 `json:"shares,omitempty"`
}

type liquidityBody struct {
	Shares    uint64                `json:"shares"`
	YesAmount uint64                `json:"yes_amount"`
	NoAmount  uint64                `json:"no_amount"`
	Pool      *domain.LiquidityPool `json:"pool"`
	Position  *domain.Position      `json:"position"`
}

func liquidityResponse(rc *engine.LiquidityReceipt) liquidityBody {
	return liquidityBody{Shares: rc.Shares, YesAmount: rc.YesAmount, NoAmount: rc.NoAmount, Pool: rc.Pool, Position: rc.Position}
}

func (s *Server) addLiquidity(w http.ResponseWriter, r *http.Request, caller string) {
	var req liquidityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rc, err := s.engine.AddLiquidity(r.Context(), caller, mux.Vars(r)["market"], req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidityResponse(rc))
}

func (s *Server) removeLiquidity(w http.ResponseWriter, r *http.Request, caller string) {
	var req liquidityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rc, err := s.engine.RemoveLiquidity(r.Context(), caller, mux.Vars(r)["market"], req.Shares)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidityResponse(rc))
}

type tradeBody struct {
	Input    uint64                `json:"input"`
	Output   uint64                `json:"output"`
	Fee      uint64                `json:"fee"`
	Pool     *domain.LiquidityPool `json:"pool"`
	Position *domain.Position      `json:"position"`
}

func (s *Server) buy(w http.ResponseWriter, r *http.Request, caller string) {
	s.trade(w, r, caller, s.engine.Buy)
}

func (s *Server) swap(w http.ResponseWriter, r *http.Request, caller string) {
	s.trade(w, r, caller, s.engine.Swap)
}

func (s *Server) trade(w http.ResponseWriter, r *http.Request, caller string,
	op func(ctx context.Context, caller, market string, req engine.TradeRequest) (*engine.TradeReceipt, error),
) {
	var req engine.TradeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rc, err := op(r.Context(), caller, mux.Vars(r)["market"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tradeBody{Input: rc.Input, Output: rc.Output, Fee: rc.Fee, Pool: rc.Pool, Position: rc.Position})
}

type poolActiveRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) setPoolActive(w http.ResponseWriter, r *http.Request, caller string) {
	var req poolActiveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Active == nil {
		writeError(w, fmt.Errorf("%w: active is required", errBadRequest))
		return
	}
	p, err := s.engine.SetPoolActive(r.Context(), caller, mux.Vars(r)["market"], *req.Active)
	respond(w, http.StatusOK, p, err)
}

type feeRateRequest struct {
	FeeRate uint16 `json:"fee_rate"`
}

func (s *Server) updateFeeRate(w http.ResponseWriter, r *http.Request, caller string) {
	var req feeRateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.engine.UpdateFeeRate(r.Context(), caller, mux.Vars(r)["market"], req.FeeRate)
	respond(w, http.StatusOK, p, err)
}

func (s *Server) collectFees(w http.ResponseWriter, r *http.Request, caller string) {
	fees, err := s.engine.CollectFees(r.Context(), caller, mux.Vars(r)["market"])
	respond(w, http.StatusOK, map[string]uint64{"fees": fees}, err)
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	b, err := s.engine.Balance(r.Context(), account)
	respond(w, http.StatusOK, map[string]any{"account": account, "balance": b}, err)
}

func (s *Server) positions(w http.ResponseWriter, r *http.Request) {
	ps, err := s.engine.PositionsByOwner(r.Context(), mux.Vars(r)["account"])
	respond(w, http.StatusOK, ps, err)
}

type fundRequest struct {
	Amount uint64 `json:"amount"`
}

func (s *Server) fund(w http.ResponseWriter, r *http.Request, caller string) {
	if s.adminKey == "" || caller != s.adminKey {
		writeError(w, fmt.Errorf("%w: funding requires the admin key", domain.ErrUnauthorized))
		return
	}
	var req fundRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	account := mux.Vars(r)["account"]
	b, err := s.engine.Fund(r.Context(), account, req.Amount)
	respond(w, http.StatusOK, map[string]any{"account": account, "balance": b}, err)
}
