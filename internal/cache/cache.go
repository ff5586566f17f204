// Package cache wraps Redis for short-lived read caching. Redis is
// optional: every operation degrades to a miss or a no-op when the
// connection is down, so the store keeps working against Postgres alone.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gamekey-store/config"
	"gamekey-store/internal/logging"
)

// Cache is a thin Redis client with a nil-safe, best-effort API
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
}

// New connects to Redis. A failed ping is logged and the cache runs
// disabled rather than blocking startup.
func New(cfg config.RedisConfig) *Cache {
	logger := logging.For("cache")

	if !cfg.Enabled {
		logger.Info().Msg("redis caching disabled by configuration")
		return &Cache{logger: logger}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Address).Msg("redis unavailable, caching disabled")
		return &Cache{logger: logger}
	}

	logger.Info().Str("addr", cfg.Address).Msg("connected to redis")
	return &Cache{client: client, logger: logger}
}

// Get fetches a key. Misses and Redis errors both report not-found.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache get failed")
		return "", false
	}
	return val, true
}

// Set stores a key with a TTL, best effort
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Delete removes a key, best effort
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Debug().Err(err).Strs("keys", keys).Msg("cache delete failed")
	}
}

// Close shuts down the Redis connection
func (c *Cache) Close() {
	if c != nil && c.client != nil {
		c.client.Close()
	}
}
