package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/agentchain/common/logger"
)

// RedisCache is a Redis-backed cache implementation for shared deployments.
type RedisCache struct {
	client *redis.Client
	prefix string
	log    *logger.Logger
}

// NewRedisCache creates a Redis-backed cache. All keys are namespaced under
// the given prefix.
func NewRedisCache(client *redis.Client, prefix string, log *logger.Logger) *RedisCache {
	if prefix == "" {
		prefix = "chaincache"
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		log:    log,
	}
}

func (c *RedisCache) key(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

// Get retrieves a value from Redis
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		c.log.Error("redis cache GET failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores a value in Redis with TTL
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		c.log.Error("redis cache SET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a value from Redis
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
