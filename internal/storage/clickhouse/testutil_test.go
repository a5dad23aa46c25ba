package clickhouse

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const schemaDir = "../migrations/clickhouse"

// newTestEventStore starts a throwaway ClickHouse with the journal schema
// loaded. Everything is torn down by t.Cleanup.
func newTestEventStore(t *testing.T) *EventStore {
	t.Helper()
	if testing.Short() {
		t.Skip("clickhouse container test; run without -short")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"CLICKHOUSE_DB":       "journal",
				"CLICKHOUSE_USER":     "default",
				"CLICKHOUSE_PASSWORD": "",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("Application: Ready for connections").WithStartupTimeout(time.Minute),
				wait.ForListeningPort("9000/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate clickhouse: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://%s/journal", endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	loadSchema(t, ctx, conn, os.DirFS(schemaDir))
	return NewEventStore(conn)
}

// loadSchema applies each *.sql file statement by statement; the native
// protocol rejects multi-statement queries.
func loadSchema(t *testing.T, ctx context.Context, conn *Conn, fsys fs.FS) {
	t.Helper()

	files, err := fs.Glob(fsys, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files, "no schema files in %s", schemaDir)

	for _, name := range files {
		body, err := fs.ReadFile(fsys, name)
		require.NoError(t, err)
		for _, stmt := range statements(string(body)) {
			require.NoError(t, conn.Exec(ctx, stmt), "apply %s", name)
		}
	}
}

// statements drops "--" comment lines and splits on semicolons.
func statements(sql string) []string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
