// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"sos-workers/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient backs the profile cache and the duplicate-reaction guard.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis returns nil when no address is configured; callers treat a nil client as "cache off".
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	client := &RedisClient{Client: rdb}
	if err := client.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return client, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
