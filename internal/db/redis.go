package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/waspershola/hospitech-nexus-sub005/internal/config"
)

// NewRedis connects to REDIS_ADDR. It returns nil, nil when Redis is not configured.
func NewRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisHealth adapts a Redis client to the health probe.
type RedisHealth struct {
	Client *redis.Client
}

func (h RedisHealth) Health(ctx context.Context) error {
	return h.Client.Ping(ctx).Err()
}
