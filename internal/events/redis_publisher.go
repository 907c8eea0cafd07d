package events

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/models"
)

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     *goredis.Client
	channel string
	log     *logger.Logger
}

func NewRedisPublisher(rdb *goredis.Client, channel string, log *logger.Logger) *RedisPublisher {
	if channel == "" {
		channel = "material-requests"
	}
	return &RedisPublisher{
		rdb:     rdb,
		channel: channel,
		log:     log.With("component", "redis_publisher"),
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, e models.MaterialRequestEvent) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis publisher not initialized")
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

// Subscribe forwards events from the channel to onEvent until ctx ends.
func (p *RedisPublisher) Subscribe(ctx context.Context, onEvent func(models.MaterialRequestEvent)) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis publisher not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := p.rdb.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var e models.MaterialRequestEvent
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					p.log.Warn("bad event payload", "error", err)
					continue
				}
				onEvent(e)
			}
		}
	}()
	return nil
}
