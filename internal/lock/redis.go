package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while it still holds our token, so an
// expired holder cannot release a lock someone else acquired since.
const unlockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Redis is a Locker shared by every process using the same Redis server.
// Keys expire after ttl so a crashed holder cannot block a market forever;
// operations must finish well within ttl.
type Redis struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
	unlock *redis.Script
}

// NewRedis creates a Redis-backed Locker. retry is the polling interval while
// a key is held.
func NewRedis(rdb redis.UniversalClient, ttl, retry time.Duration) *Redis {
	return &Redis{
		rdb:    rdb,
		ttl:    ttl,
		retry:  retry,
		prefix: "lock:market:",
		unlock: redis.NewScript(unlockScript),
	}
}

// Lock polls SETNX until it wins or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		unlock, err := r.TryLock(ctx, key)
		if err == nil {
			return unlock, nil
		}
		if err != ErrLockHeld {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis: wait for lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// TryLock makes one SETNX attempt. Returns ErrLockHeld if the key is taken.
func (r *Redis) TryLock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	k := r.prefix + key

	ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// the caller's ctx may already be cancelled
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.unlock.Run(unlockCtx, r.rdb, []string{k}, token).Err()
	}, nil
}

var _ Locker = (*Redis)(nil)
