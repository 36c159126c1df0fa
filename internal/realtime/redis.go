package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	applog "garagelink/internal/log"
)

// RedisPrefix namespaces realtime channels inside Redis pub/sub.
const RedisPrefix = "rt:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// RedisPublisher publishes envelopes to Redis so every API instance can relay
// them to its own websocket clients.
type RedisPublisher struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, logger: applog.WithComponent("realtime.redis")}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	env, err := NewEnvelope(channel, event, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, RedisPrefix+channel, body).Err(); err != nil {
		p.logger.Warn().Err(err).Str("channel", channel).Msg("redis publish failed")
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Sink receives envelopes relayed from Redis.
type Sink interface {
	Deliver(env Envelope)
}

// RedisRelay subscribes to every realtime channel and hands messages to a
// local sink until ctx is cancelled.
type RedisRelay struct {
	client *redis.Client
	sink   Sink
	logger zerolog.Logger
}

func NewRedisRelay(client *redis.Client, sink Sink) *RedisRelay {
	return &RedisRelay{client: client, sink: sink, logger: applog.WithComponent("realtime.relay")}
}

func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, RedisPrefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed message")
				continue
			}
			r.sink.Deliver(env)
		}
	}
}
