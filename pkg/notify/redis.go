package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// RedisConfig configures pub/sub delivery.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Redis publishes alerts as JSON on a pub/sub channel, for dashboards and
// services subscribed elsewhere.
type Redis struct {
	channel string
	client  *redis.Client
}

// NewRedis creates the client and checks the server is reachable.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Channel == "" {
		cfg.Channel = "shesafe:alerts"
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("notify: redis: ping %s: %w", cfg.Addr, err)
	}
	return &Redis{channel: cfg.Channel, client: client}, nil
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Send(ctx context.Context, ev alert.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
