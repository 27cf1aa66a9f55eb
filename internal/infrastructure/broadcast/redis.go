package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisRelay publishes progress to a Redis channel and feeds everything received on it
// into a local Hub, so observers attached to any instance see every instance's work.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zerolog.Logger
}

func NewRedisRelay(ctx context.Context, url, channel string, hub *Hub) (*RedisRelay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisRelay{client: client, channel: channel, hub: hub, logger: log.Component("redis-relay")}, nil
}

func (r *RedisRelay) Publish(ctx context.Context, msg models.ProgressMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run forwards channel messages into the hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg models.ProgressMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.logger.Warn().Err(err).Msg("dropping malformed progress message")
				continue
			}
			r.hub.Publish(ctx, msg)
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
