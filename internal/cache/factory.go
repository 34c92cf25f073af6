package cache

import (
	"github.com/redis/go-redis/v9"

	"promptcache/internal/config"
)

// NewHotCache picks the HotCache backend from config: "redis" when a client
// is supplied, in-process memory otherwise.
func NewHotCache(cfg config.CacheConfig, redisClient *redis.Client) HotCache {
	switch cfg.Backend {
	case "redis":
		return NewRedisHotCache(redisClient, cfg.Prefix)
	default:
		return NewMemoryHotCache(cfg.TTL)
	}
}
