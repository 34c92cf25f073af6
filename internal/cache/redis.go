package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHotCache implements HotCache on Redis, for deployments with more
// than one gateway instance sharing hot reads.
type RedisHotCache struct {
	client *redis.Client
	prefix string
}

func NewRedisHotCache(client *redis.Client, prefix string) *RedisHotCache {
	return &RedisHotCache{client: client, prefix: prefix}
}

func (c *RedisHotCache) key(fingerprint string) string {
	if c.prefix == "" {
		return "sq:" + fingerprint
	}
	return c.prefix + ":sq:" + fingerprint
}

// Get returns (nil, false, err) on Redis failure so the caller can log and
// fall through to the durable ledger.
func (c *RedisHotCache) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	res, err := c.client.Get(ctx, c.key(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return res, true, nil
}

func (c *RedisHotCache) Set(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.key(fingerprint), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks the Redis connection; called once at startup to fail fast.
func (c *RedisHotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
