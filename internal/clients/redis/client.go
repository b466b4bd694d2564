package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

// NewClient dials Redis and pings it once. A store that cannot be reached is
// an error: callers must not serve traffic without it.
func NewClient(ctx context.Context, log *logger.Logger, cfg config.RedisConfig) (*goredis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	dial := cfg.DialTimeout.Duration
	if dial <= 0 {
		dial = 5 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dial,
	})

	if ctx == nil {
		ctx = context.Background()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.With("service", "Redis").Info("redis connected", "addr", addr, "db", cfg.DB)
	return rdb, nil
}

// Ping reports whether the store answers within timeout.
func Ping(ctx context.Context, rdb goredis.UniversalClient, timeout time.Duration) error {
	if rdb == nil {
		return fmt.Errorf("redis client not initialized")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
