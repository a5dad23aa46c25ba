package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"prediction-market-amm/internal/domain"
)

// ChannelPrefix prefixes the per-market Redis pub/sub channel.
const ChannelPrefix = "market-events:"

// Redis publishes events on per-market pub/sub channels so every server
// instance can relay them to its own WebSocket clients.
type Redis struct {
	rdb redis.UniversalClient
}

// NewRedis creates a Redis pub/sub publisher.
func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb}
}

// Channel returns the pub/sub channel of market.
func Channel(market string) string {
	return ChannelPrefix + market
}

// Publish sends each event to its market channel in one pipeline.
func (r *Redis) Publish(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := r.rdb.Pipeline()
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("redis: marshal event %s: %w", e.EventID, err)
		}
		pipe.Publish(ctx, Channel(e.Market), payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish %d events: %w", len(events), err)
	}
	return nil
}

// Subscribe streams events of every market until ctx is done. Malformed
// payloads are skipped. The returned channel closes when the subscription ends.
func (r *Redis) Subscribe(ctx context.Context) (<-chan *domain.Event, error) {
	pubsub := r.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s*: %w", ChannelPrefix, err)
	}

	out := make(chan *domain.Event, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					continue
				}
				select {
				case out <- &e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var _ Sink = (*Redis)(nil)
