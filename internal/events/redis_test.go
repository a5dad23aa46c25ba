package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, rdb.Ping(ctx).Err())

	return rdb, func() {
		_ = rdb.Close()
		_ = container.Terminate(ctx)
	}
}

func TestRedis_PublishSubscribe(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := NewRedis(rdb)
	sub, err := r.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Publish(ctx, sampleEvents()))

	var ids []string
	for len(ids) < 2 {
		select {
		case e := <-sub:
			ids = append(ids, e.EventID)
		case <-ctx.Done():
			t.Fatalf("received %v before timeout", ids)
		}
	}
	assert.ElementsMatch(t, []string{"e1", "e2"}, ids)

	cancel()
	for range sub {
	}
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "market-events:abc", Channel("abc"))
}
