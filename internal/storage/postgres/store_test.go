package postgres

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

var errAbort = errors.New("abort")

func TestMarketStore_InsertGetUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	m := seedMarket(t, ctx, store, "market-1")
	assert.Equal(t, int64(1), m.Version)

	err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.Markets().GetByAddress(ctx, "market-1")
		require.NoError(t, err)
		assert.Equal(t, m.MarketID, got.MarketID)
		assert.Equal(t, domain.KindAMM, got.Kind)
		assert.Nil(t, got.Resolution)

		got.TotalYesAmount = 500
		got.Resolved = true
		got.Resolution = ptr(true)
		got.ResolvedAt = ptr(int64(1700000200000))
		return tx.Markets().Update(ctx, got)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.Markets().GetByAddress(ctx, "market-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.Equal(t, uint64(500), got.TotalYesAmount)
		require.NotNil(t, got.Resolution)
		assert.True(t, *got.Resolution)

		list, err := tx.Markets().List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestMarketStore_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	m := seedMarket(t, ctx, store, "market-1")

	err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		dup := *m
		return tx.Markets().Insert(ctx, &dup)
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.Markets().GetByAddress(ctx, "missing")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stale := *m
	stale.Version = 7
	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Markets().Update(ctx, &stale)
	})
	assert.ErrorIs(t, err, storage.ErrVersionConflict)

	huge := *m
	huge.TotalNoAmount = math.MaxUint64
	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Markets().Update(ctx, &huge)
	})
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

func TestPoolStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMarket(t, ctx, store, "market-1")

	lp := &domain.LiquidityPool{
		Address:        "pool-1",
		Market:         "market-1",
		Authority:      "authority",
		YesReserves:    50000,
		NoReserves:     50000,
		TotalLiquidity: 100000,
		FeeRate:        100,
		IsActive:       true,
		Collateral:     100000,
		YesSupply:      50000,
		NoSupply:       50000,
		CreatedAt:      1700000000000,
	}
	err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Pools().Insert(ctx, lp)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.Pools().GetByMarket(ctx, "market-1")
		require.NoError(t, err)
		assert.Equal(t, *lp, *got)

		got.YesReserves = 50990
		got.NoReserves = 49029
		got.AccumulatedFees = 10
		got.YesFees = 10
		return tx.Pools().Update(ctx, got)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.Pools().GetByMarket(ctx, "market-1")
		require.NoError(t, err)
		assert.Equal(t, uint64(50990), got.YesReserves)
		assert.Equal(t, uint64(10), got.AccumulatedFees)
		assert.Equal(t, uint64(10), got.YesFees)
		assert.Zero(t, got.NoFees)
		assert.Equal(t, int64(2), got.Version)
		return nil
	})
	require.NoError(t, err)

	orphan := &domain.LiquidityPool{Address: "pool-2", Market: "no-such-market", CreatedAt: 1}
	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Pools().Insert(ctx, orphan)
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestPositionStore_Queries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMarket(t, ctx, store, "market-1")

	err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for i, owner := range []string{"alice", "bob"} {
			p := &domain.Position{
				Address:   "pos-" + owner,
				Owner:     owner,
				Market:    "market-1",
				YesTokens: uint64(100 * (i + 1)),
				CreatedAt: int64(1700000000000 + i),
				UpdatedAt: int64(1700000000000 + i),
			}
			if err := tx.Positions().Insert(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		byMarket, err := tx.Positions().GetByMarket(ctx, "market-1")
		require.NoError(t, err)
		require.Len(t, byMarket, 2)
		assert.Equal(t, "alice", byMarket[0].Owner)
		assert.Equal(t, uint64(200), byMarket[1].YesTokens)

		byOwner, err := tx.Positions().GetByOwner(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, byOwner, 1)

		p := byOwner[0]
		p.Claimed = true
		p.ClaimedAmount = 300
		return tx.Positions().Update(ctx, p)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		p, err := tx.Positions().GetByAddress(ctx, "pos-bob")
		require.NoError(t, err)
		assert.True(t, p.Claimed)
		assert.Equal(t, uint64(300), p.ClaimedAmount)
		return nil
	})
	require.NoError(t, err)
}

func TestLedger_TransferAndRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Ledger().Credit(ctx, "alice", 100); err != nil {
			return err
		}
		return tx.Ledger().Transfer(ctx, "alice", "vault", 60)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Ledger().Transfer(ctx, "alice", "vault", 41)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Ledger().Transfer(ctx, "vault", "bob", 60); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		alice, err := tx.Ledger().Balance(ctx, "alice")
		require.NoError(t, err)
		vault, err := tx.Ledger().Balance(ctx, "vault")
		require.NoError(t, err)
		bob, err := tx.Ledger().Balance(ctx, "bob")
		require.NoError(t, err)

		assert.Equal(t, uint64(40), alice)
		assert.Equal(t, uint64(60), vault)
		assert.Equal(t, uint64(0), bob)
		return nil
	})
	require.NoError(t, err)
}
