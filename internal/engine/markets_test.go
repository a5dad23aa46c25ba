package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/market"
	"prediction-market-amm/internal/storage"
)

func TestCreateMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.createMarket(t, "rain", domain.KindPariMutuel, 10, 1000)
	want, err := f.addr.Market("rain")
	require.NoError(t, err)
	assert.Equal(t, want, m.Address)
	assert.Equal(t, "authority", m.Authority)
	assert.Equal(t, "oracle", m.Oracle)
	assert.Equal(t, int64(1), m.Version)
	assert.Equal(t, t0, m.CreatedAt)

	_, err = f.eng.GetPool(ctx, m.Address)
	assert.ErrorIs(t, err, storage.ErrNotFound, "pari-mutuel markets have no pool")

	created := f.rec.OfType(domain.EventMarketCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "authority", created[0].Actor)
	assert.Equal(t, int64(1), created[0].Sequence)
}

func TestCreateMarket_AMMCreatesPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fee := uint16(250)

	m, err := f.eng.CreateMarket(ctx, "authority", CreateMarketRequest{
		Params:      market.Params{MarketID: "amm", Kind: domain.KindAMM, EndTime: t0 + hour, MinBetAmount: 1, MaxBetAmount: 100},
		PoolFeeRate: &fee,
	})
	require.NoError(t, err)

	p, err := f.eng.GetPool(ctx, m.Address)
	require.NoError(t, err)
	assert.Equal(t, uint16(250), p.FeeRate)
	assert.True(t, p.IsActive)
	assert.Equal(t, "authority", p.Authority)
	assert.Zero(t, p.TotalLiquidity)

	pev := f.rec.OfType(domain.EventPoolCreated)
	require.Len(t, pev, 1)
	assert.Equal(t, uint16(250), pev[0].FeeRate)
}

func TestCreateMarket_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMarket(t, "dup", domain.KindPariMutuel, 1, 10)
	tooHigh := uint16(1001)

	tests := []struct {
		name   string
		caller string
		req    CreateMarketRequest
		kind   domain.Kind
	}{
		{
			name:   "duplicate market id",
			caller: "authority",
			req:    CreateMarketRequest{Params: market.Params{MarketID: "dup", EndTime: t0 + hour, MinBetAmount: 1, MaxBetAmount: 10}},
			kind:   domain.KindState,
		},
		{
			name:   "end time in the past",
			caller: "authority",
			req:    CreateMarketRequest{Params: market.Params{MarketID: "past", EndTime: t0, MinBetAmount: 1, MaxBetAmount: 10}},
			kind:   domain.KindValidation,
		},
		{
			name:   "min above max",
			caller: "authority",
			req:    CreateMarketRequest{Params: market.Params{MarketID: "range", EndTime: t0 + hour, MinBetAmount: 10, MaxBetAmount: 1}},
			kind:   domain.KindValidation,
		},
		{
			name:   "pool fee too high",
			caller: "authority",
			req: CreateMarketRequest{
				Params:      market.Params{MarketID: "fee", Kind: domain.KindAMM, EndTime: t0 + hour, MinBetAmount: 1, MaxBetAmount: 10},
				PoolFeeRate: &tooHigh,
			},
			kind: domain.KindValidation,
		},
		{
			name: "missing caller",
			req:  CreateMarketRequest{Params: market.Params{MarketID: "anon", EndTime: t0 + hour, MinBetAmount: 1, MaxBetAmount: 10}},
			kind: domain.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.CreateMarket(ctx, tt.caller, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}

	// the failed AMM create left neither market nor pool behind
	addr, err := f.eng.MarketAddress("fee")
	require.NoError(t, err)
	_, err = f.eng.GetMarket(ctx, addr)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlaceBet_RangeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, "range", domain.KindPariMutuel, 10, 1000)
	f.fund(t, "alice", 100)

	_, err := f.eng.PlaceBet(ctx, "alice", m.Address, 5, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrBetOutOfRange)
	assert.Equal(t, uint64(100), f.balance(t, "alice"))

	pos, err := f.eng.PlaceBet(ctx, "alice", m.Address, 10, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), pos.YesTokens)
	assert.Equal(t, int64(1), pos.Version)

	got, err := f.eng.GetMarket(ctx, m.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.TotalYesAmount)
	assert.Equal(t, uint64(90), f.balance(t, "alice"))
	assert.Equal(t, uint64(10), f.vaultBalance(t, m.Address))

	bets := f.rec.OfType(domain.EventBetPlaced)
	require.Len(t, bets, 1)
	assert.Equal(t, domain.SideYes, bets[0].Side)
	assert.Equal(t, uint64(10), bets[0].Amount)
	assert.Equal(t, got.Version, bets[0].Sequence)
}

func TestPlaceBet_AccumulatesPerSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, "acc", domain.KindPariMutuel, 1, 1000)
	f.fund(t, "alice", 1000)

	_, err := f.eng.PlaceBet(ctx, "alice", m.Address, 100, domain.SideYes)
	require.NoError(t, err)
	_, err = f.eng.PlaceBet(ctx, "alice", m.Address, 50, domain.SideYes)
	require.NoError(t, err)
	pos, err := f.eng.PlaceBet(ctx, "alice", m.Address, 30, domain.SideNo)
	require.NoError(t, err)

	assert.Equal(t, uint64(150), pos.YesTokens)
	assert.Equal(t, uint64(30), pos.NoTokens)
	assert.Equal(t, int64(3), pos.Version)
	assert.Equal(t, uint64(820), f.balance(t, "alice"))
}

func TestPlaceBet_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pm := f.createMarket(t, "pm", domain.KindPariMutuel, 1, 1000)
	am := f.createMarket(t, "am", domain.KindAMM, 1, 1000)
	f.fund(t, "alice", 1000)

	_, err := f.eng.PlaceBet(ctx, "alice", am.Address, 10, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrWrongMarketKind)

	_, err = f.eng.PlaceBet(ctx, "alice", pm.Address, 10, domain.Side("maybe"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.eng.PlaceBet(ctx, "bob", pm.Address, 10, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = f.eng.PlaceBet(ctx, "alice", "missing", 10, domain.SideYes)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, domain.KindNotFound, KindOf(err))

	_, err = f.eng.GetPosition(ctx, "bob", pm.Address)
	assert.ErrorIs(t, err, storage.ErrNotFound, "failed bet must not create a position")

	f.expire()
	_, err = f.eng.PlaceBet(ctx, "alice", pm.Address, 10, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrMarketExpired)

	_, err = f.eng.ResolveMarket(ctx, "oracle", pm.Address, true)
	require.NoError(t, err)
	_, err = f.eng.PlaceBet(ctx, "alice", pm.Address, 10, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
	assert.Equal(t, uint64(1000), f.balance(t, "alice"))
}

func TestResolveMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, "resolve", domain.KindPariMutuel, 1, 1000)

	_, err := f.eng.ResolveMarket(ctx, "oracle", m.Address, true)
	assert.ErrorIs(t, err, domain.ErrResolutionTooEarly)

	f.expire()
	_, err = f.eng.ResolveMarket(ctx, "authority", m.Address, true)
	assert.ErrorIs(t, err, domain.ErrUnauthorizedResolver, "only the designated oracle resolves")

	got, err := f.eng.ResolveMarket(ctx, "oracle", m.Address, false)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	require.NotNil(t, got.Resolution)
	assert.False(t, *got.Resolution)
	require.NotNil(t, got.ResolvedAt)
	assert.Equal(t, t0+hour, *got.ResolvedAt)

	_, err = f.eng.ResolveMarket(ctx, "oracle", m.Address, true)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	resolved := f.rec.OfType(domain.EventMarketResolved)
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].Outcome)
	assert.False(t, *resolved[0].Outcome)
}

func TestPariMutuelLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, "life", domain.KindPariMutuel, 1, 1000)
	for _, who := range []string{"alice", "bob", "carol"} {
		f.fund(t, who, 1000)
	}

	_, err := f.eng.PlaceBet(ctx, "alice", m.Address, 300, domain.SideYes)
	require.NoError(t, err)
	_, err = f.eng.PlaceBet(ctx, "bob", m.Address, 100, domain.SideNo)
	require.NoError(t, err)
	_, err = f.eng.PlaceBet(ctx, "carol", m.Address, 100, domain.SideYes)
	require.NoError(t, err)

	_, err = f.eng.Claim(ctx, "alice", m.Address)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)

	f.expire()
	_, err = f.eng.ResolveMarket(ctx, "oracle", m.Address, true)
	require.NoError(t, err)

	pos, err := f.eng.Claim(ctx, "alice", m.Address)
	require.NoError(t, err)
	assert.True(t, pos.Claimed)
	assert.Equal(t, uint64(375), pos.ClaimedAmount) // 300 * 500 / 400
	assert.Equal(t, uint64(1075), f.balance(t, "alice"))

	_, err = f.eng.Claim(ctx, "alice", m.Address)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	_, err = f.eng.Claim(ctx, "bob", m.Address)
	assert.ErrorIs(t, err, domain.ErrNoWinnings)

	_, err = f.eng.Claim(ctx, "dave", m.Address)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	pos, err = f.eng.Claim(ctx, "carol", m.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(125), pos.ClaimedAmount)

	assert.Zero(t, f.vaultBalance(t, m.Address))
	assert.Len(t, f.rec.OfType(domain.EventWinningsClaimed), 2)
}

// failingStore wraps a store so every ledger transfer fails.
type failingStore struct {
	storage.Store
}

func (s failingStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.Store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, failingTx{tx})
	})
}

type failingTx struct {
	storage.Tx
}

func (t failingTx) Ledger() storage.Ledger {
	return failingLedger{t.Tx.Ledger()}
}

type failingLedger struct {
	storage.Ledger
}

func (failingLedger) Transfer(context.Context, string, string, uint64) error {
	return domain.ErrInsufficientFunds
}

func TestClaim_AtomicWithPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, "atomic", domain.KindPariMutuel, 1, 1000)
	f.fund(t, "alice", 100)
	_, err := f.eng.PlaceBet(ctx, "alice", m.Address, 100, domain.SideYes)
	require.NoError(t, err)
	f.expire()
	_, err = f.eng.ResolveMarket(ctx, "oracle", m.Address, true)
	require.NoError(t, err)
	f.rec.Reset()

	broken := f.engine(t, failingStore{f.store})
	_, err = broken.Claim(ctx, "alice", m.Address)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	pos, err := f.eng.GetPosition(ctx, "alice", m.Address)
	require.NoError(t, err)
	assert.False(t, pos.Claimed, "claimed flag must roll back with the transfer")
	assert.Zero(t, f.balance(t, "alice"))
	assert.Empty(t, f.rec.Events())

	pos, err = f.eng.Claim(ctx, "alice", m.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), pos.ClaimedAmount)
	assert.Equal(t, uint64(100), f.balance(t, "alice"))
}

func TestPlaceBet_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, "busy", domain.KindPariMutuel, 1, 1000)

	const bettors = 20
	for i := 0; i < bettors; i++ {
		f.fund(t, bettorName(i), 100)
	}

	var wg sync.WaitGroup
	errs := make(chan error, bettors*5)
	for i := 0; i < bettors; i++ {
		wg.Add(1)
		go func(who string, yes bool) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := f.eng.PlaceBet(ctx, who, m.Address, 10, domain.SideOf(yes)); err != nil {
					errs <- err
				}
			}
		}(bettorName(i), i%2 == 0)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("bet failed: %v", err)
	}

	got, err := f.eng.GetMarket(ctx, m.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got.TotalYesAmount)
	assert.Equal(t, uint64(500), got.TotalNoAmount)
	assert.Equal(t, int64(1+bettors*5), got.Version)
	assert.Equal(t, uint64(1000), f.vaultBalance(t, m.Address))
}

func bettorName(i int) string {
	return "bettor-" + string(rune('a'+i))
}
