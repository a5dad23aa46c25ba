package postgres

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"prediction-market-amm/internal/domain"
	"prediction-market-amm/internal/storage"
)

// schemaDir is relative to this package; go test runs in the package directory.
const schemaDir = "../migrations/postgres"

// newTestStore starts a throwaway PostgreSQL, loads the schema and returns a
// Store over it. Container and pool are released when the test finishes.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test; run without -short")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("markets"),
		tcpostgres.WithUsername("pm"),
		tcpostgres.WithPassword("pm"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	loadSchema(t, ctx, pool, os.DirFS(schemaDir))
	return NewStore(pool)
}

// loadSchema executes every *.sql file of fsys in lexical order.
func loadSchema(t *testing.T, ctx context.Context, pool *Pool, fsys fs.FS) {
	t.Helper()

	files, err := fs.Glob(fsys, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files, "no schema files in %s", schemaDir)

	for _, name := range files {
		body, err := fs.ReadFile(fsys, name)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(body))
		require.NoError(t, err, "apply %s", name)
	}
}

func ptr[T any](v T) *T { return &v }

// seedMarket commits a minimal market so pools and positions can reference it.
func seedMarket(t *testing.T, ctx context.Context, store *Store, address string) *domain.Market {
	t.Helper()

	m := &domain.Market{
		Address:      address,
		MarketID:     "id-" + address,
		Kind:         domain.KindAMM,
		Authority:    "authority",
		Oracle:       "oracle",
		Title:        "Will it rain?",
		EndTime:      1700000100000,
		MinBetAmount: 1,
		MaxBetAmount: 1000000,
		CreatedAt:    1700000000000,
	}
	err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Markets().Insert(ctx, m)
	})
	require.NoError(t, err)
	return m
}
