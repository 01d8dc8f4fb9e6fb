package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiliankoe/albumnight/internal/game"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultChannel is the Redis pub/sub channel used for change notifications.
const DefaultChannel = "albumnight:changes"

type envelope struct {
	Origin string      `json:"origin"`
	Change game.Change `json:"change"`
}

// RedisBridge carries changes between server processes that share one store.
// Notify publishes; Run relays changes from other processes into the hub.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	origin  string
}

func NewRedisBridge(client *redis.Client, channel string, hub *Hub) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{client: client, channel: channel, hub: hub, origin: uuid.NewString()}
}

// DialRedis parses a redis:// URL and checks the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (b *RedisBridge) Notify(ctx context.Context, c game.Change) error {
	payload, err := json.Marshal(envelope{Origin: b.origin, Change: c})
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Run subscribes to the channel until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	log.Info().Str("channel", b.channel).Msg("redis change bridge listening")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.relay(ctx, []byte(msg.Payload))
		}
	}
}

func (b *RedisBridge) relay(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Warn().Err(err).Msg("dropping malformed change notification")
		return
	}
	if env.Origin == b.origin {
		return
	}
	_ = b.hub.Notify(ctx, env.Change)
}
