package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"promptcache/internal/metrics"
	"promptcache/pkg/logging"
)

// LoggingHotCache wraps a HotCache with logging and metrics.
type LoggingHotCache struct {
	inner HotCache
}

func NewLoggingHotCache(inner HotCache) HotCache {
	return &LoggingHotCache{inner: inner}
}

func (c *LoggingHotCache) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, fingerprint)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
		metrics.HotCacheHitsTotal.Inc()
	}

	fields := []zap.Field{
		zap.String("cache_tier", "hot"),
		zap.String("fingerprint", fingerprint),
		zap.String("cache_result", result),
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("hot_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("hot_cache_get", fields...)
	}

	return value, ok, err
}

func (c *LoggingHotCache) Set(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.inner.Set(ctx, fingerprint, value, ttl)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	fields := []zap.Field{
		zap.String("cache_tier", "hot"),
		zap.String("fingerprint", fingerprint),
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("hot_cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("hot_cache_set", fields...)
	}

	return err
}
