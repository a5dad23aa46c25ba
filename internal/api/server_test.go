package api

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prediction-market-amm/internal/address"
	"prediction-market-amm/internal/auth"
	"prediction-market-amm/internal/clock"
	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/engine"
	"prediction-market-amm/internal/storage/memory"
)

const now = int64(1_700_000_000_000)

type keyPair struct {
	priv ed25519.PrivateKey
	pub  string
}

func newKeyPair(seed byte) keyPair {
	s := bytes.Repeat([]byte{seed}, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(s)
	return keyPair{priv: priv, pub: base58.Encode(priv.Public().(ed25519.PublicKey))}
}

type harness struct {
	handler http.Handler
	clk     *clock.Manual
	admin   keyPair
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	d, err := address.NewDeriver("11111111111111111111111111111112")
	require.NoError(t, err)
	clk := clock.NewManual(now)
	eng, err := engine.New(engine.Options{Store: memory.NewStore(), Deriver: d, Clock: clk, DefaultFeeRate: 100})
	require.NoError(t, err)

	admin := newKeyPair(9)
	opts.Engine = eng
	opts.AdminKey = admin.pub
	if opts.Verifier == nil {
		opts.Verifier = auth.NewVerifier(clk, 30*time.Second)
	}
	return &harness{handler: New(opts).Handler(), clk: clk, admin: admin}
}

// do sends a request signed by kp, or unsigned when kp is nil.
func (h *harness) do(t *testing.T, method, path string, body any, kp *keyPair) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if kp != nil {
		require.NoError(t, auth.Sign(r, kp.priv, h.clk.NowMs()))
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (h *harness) createMarket(t *testing.T, creator keyPair, id string, kind domain.MarketKind) *domain.Market {
	t.Helper()
	w := h.do(t, http.MethodPost, "/v1/markets", map[string]any{
		"market_id":      id,
		"kind":           kind,
		"title":          "Test market",
		"end_time":       now + 3_600_000,
		"min_bet_amount": 10,
		"max_bet_amount": 1000,
	}, &creator)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[*domain.Market](t, w)
}

func (h *harness) fund(t *testing.T, account string, amount uint64) {
	t.Helper()
	w := h.do(t, http.MethodPost, "/v1/accounts/"+account+"/fund", map[string]uint64{"amount": amount}, &h.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, Options{})
	w := h.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestPariMutuelFlow(t *testing.T) {
	h := newHarness(t, Options{})
	creator, alice := newKeyPair(1), newKeyPair(2)

	m := h.createMarket(t, creator, "rain", domain.KindPariMutuel)
	assert.Equal(t, creator.pub, m.Authority)
	assert.Equal(t, creator.pub, m.Oracle)

	h.fund(t, alice.pub, 500)

	w := h.do(t, http.MethodPost, "/v1/markets/"+m.Address+"/bets", map[string]any{"side": "yes", "amount": 100}, &alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pos := decodeBody[*domain.Position](t, w)
	assert.Equal(t, uint64(100), pos.YesTokens)

	w = h.do(t, http.MethodGet, "/v1/accounts/"+alice.pub+"/balance", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	bal := decodeBody[map[string]any](t, w)
	assert.EqualValues(t, 400, bal["balance"])

	w = h.do(t, http.MethodGet, "/v1/markets/"+m.Address+"/quote?side=no&amount=100", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	h.clk.Advance(2 * time.Hour)
	w = h.do(t, http.MethodPost, "/v1/markets/"+m.Address+"/resolve", map[string]bool{"outcome": true}, &creator)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodPost, "/v1/markets/"+m.Address+"/claim", nil, &alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pos = decodeBody[*domain.Position](t, w)
	assert.True(t, pos.Claimed)
	assert.Equal(t, uint64(100), pos.ClaimedAmount)

	w = h.do(t, http.MethodGet, "/v1/markets/"+m.Address+"/positions/"+alice.pub, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/v1/accounts/"+alice.pub+"/positions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]*domain.Position](t, w), 1)
}

func TestAMMFlow(t *testing.T) {
	h := newHarness(t, Options{})
	creator, lp, bob := newKeyPair(1), newKeyPair(2), newKeyPair(3)
	m := h.createMarket(t, creator, "amm", domain.KindAMM)
	h.fund(t, lp.pub, 100_000)
	h.fund(t, bob.pub, 1000)
	base := "/v1/markets/" + m.Address

	w := h.do(t, http.MethodPost, base+"/liquidity", map[string]uint64{"amount": 100_000}, &lp)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 100_000, decodeBody[map[string]any](t, w)["shares"])

	w = h.do(t, http.MethodGet, base+"/quote-swap?direction=yes_to_no&amount=1000", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 971, decodeBody[map[string]any](t, w)["output"])

	w = h.do(t, http.MethodPost, base+"/buy", map[string]any{"side": "no", "amount": 1000}, &bob)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1971, decodeBody[map[string]any](t, w)["output"])

	w = h.do(t, http.MethodPost, base+"/swap", map[string]any{"direction": "no_to_yes", "amount": 100}, &bob)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodPost, base+"/pool/fee-rate", map[string]uint16{"fee_rate": 50}, &bob)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = h.do(t, http.MethodPost, base+"/pool/fee-rate", map[string]uint16{"fee_rate": 50}, &creator)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodPost, base+"/pool/collect-fees", nil, &creator)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 11, decodeBody[map[string]any](t, w)["fees"]) // 10 from the buy, 1 from the swap

	w = h.do(t, http.MethodPost, base+"/pool/active", map[string]bool{"active": false}, &creator)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = h.do(t, http.MethodPost, base+"/liquidity/remove", map[string]uint64{"shares": 10}, &lp)
	assert.Equal(t, http.StatusConflict, w.Code, "inactive pool")

	w = h.do(t, http.MethodGet, base+"/pool", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody[map[string]any](t, w)["is_active"])
}

func TestErrorStatuses(t *testing.T) {
	h := newHarness(t, Options{})
	creator, alice := newKeyPair(1), newKeyPair(2)
	m := h.createMarket(t, creator, "errs", domain.KindPariMutuel)
	h.fund(t, alice.pub, 100)
	base := "/v1/markets/" + m.Address

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		kp     *keyPair
		want   int
	}{
		{"unsigned mutation", http.MethodPost, base + "/bets", map[string]any{"side": "yes", "amount": 10}, nil, http.StatusUnauthorized},
		{"bet out of range", http.MethodPost, base + "/bets", map[string]any{"side": "yes", "amount": 5}, &alice, http.StatusBadRequest},
		{"unknown field", http.MethodPost, base + "/bets", map[string]any{"side": "yes", "amount": 10, "odds": 2}, &alice, http.StatusBadRequest},
		{"insufficient funds", http.MethodPost, base + "/bets", map[string]any{"side": "yes", "amount": 1000}, &alice, http.StatusConflict},
		{"resolve too early", http.MethodPost, base + "/resolve", map[string]bool{"outcome": true}, &creator, http.StatusConflict},
		{"resolve without outcome", http.MethodPost, base + "/resolve", map[string]any{}, &creator, http.StatusBadRequest},
		{"claim unresolved", http.MethodPost, base + "/claim", nil, &alice, http.StatusConflict},
		{"unknown market", http.MethodGet, "/v1/markets/nowhere", nil, nil, http.StatusNotFound},
		{"pool of pari-mutuel market", http.MethodGet, base + "/pool", nil, nil, http.StatusNotFound},
		{"bad quote side", http.MethodGet, base + "/quote?side=up&amount=1", nil, nil, http.StatusBadRequest},
		{"bad quote amount", http.MethodGet, base + "/quote?side=yes&amount=-1", nil, nil, http.StatusBadRequest},
		{"fund by non-admin", http.MethodPost, "/v1/accounts/" + alice.pub + "/fund", map[string]uint64{"amount": 1}, &alice, http.StatusForbidden},
		{"wrong method", http.MethodDelete, base, nil, nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, tt.method, tt.path, tt.body, tt.kp)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestStaleSignatureRejected(t *testing.T) {
	h := newHarness(t, Options{})
	alice := newKeyPair(2)

	var buf bytes.Buffer
	r := httptest.NewRequest(http.MethodPost, "/v1/markets", &buf)
	require.NoError(t, auth.Sign(r, alice.priv, now-time.Minute.Milliseconds()))
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(domain.KindAuthorization), decodeBody[map[string]any](t, w)["kind"])
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Options{RateLimit: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		w := h.do(t, http.MethodGet, "/healthz", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := h.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// a fresh key header does not open a new bucket
	alice := newKeyPair(2)
	w = h.do(t, http.MethodGet, "/healthz", nil, &alice)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(auth.HeaderKey, "rotated-key")
	w = httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.RemoteAddr = "198.51.100.7:4242"
	w = httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code, "limits are per host")
}

func TestLimitersForgetIdleKeys(t *testing.T) {
	l := newLimiters(1, 1, time.Minute)
	t0 := time.Unix(0, 0)

	assert.True(t, l.allow("a", t0))
	assert.False(t, l.allow("a", t0))
	assert.True(t, l.allow("b", t0.Add(30*time.Second)))

	assert.True(t, l.allow("c", t0.Add(2*time.Minute)))
	assert.Len(t, l.entries, 1, "a and b were idle past the ttl")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.KindValidation))
	assert.Equal(t, http.StatusConflict, statusFor(domain.KindState))
	assert.Equal(t, http.StatusConflict, statusFor(domain.KindResource))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(domain.KindArithmetic))
	assert.Equal(t, http.StatusForbidden, statusFor(domain.KindAuthorization))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.KindNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(domain.KindInternal))
}
