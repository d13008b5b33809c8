package utils

import (
	"health-geo/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis returns a client for addr, or nil when no address is configured.
// Negative db indexes fall back to 0.
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	if db < 0 {
		db = 0
	}
	logger.L().Debug("redis_open", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}
