package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"health-geo/internal/logger"
	"health-geo/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Redis stores entries under a key prefix with SET EX; Clear only touches keys with that prefix.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "healthgeo:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	return v, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, val []byte) error {
	if err := c.rdb.Set(ctx, c.prefix+key, val, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear scans the prefix in pages of 500 and deletes each page.
func (c *Redis) Clear(ctx context.Context) error {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.prefix+"*", 500).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			total += len(keys)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	metrics.CacheEvictionsTotal.WithLabelValues("clear").Add(float64(total))
	logger.L().Info("cache_cleared", "backend", "redis", "entries", total)
	return nil
}
