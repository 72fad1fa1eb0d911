package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/valora-connect/internal/events"
)

// RedisPublisher implements events.Publisher over Redis pub/sub.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

var _ events.Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher constructs a publisher on the given channel.
func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish encodes the event and pushes it to the bus channel.
func (p *RedisPublisher) Publish(ctx context.Context, event events.ProviderConnectionCompleted) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
