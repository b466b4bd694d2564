package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/nono-backend/internal/clients/redis"
	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/llm"
	"github.com/yungbote/nono-backend/internal/llm/backend"
	"github.com/yungbote/nono-backend/internal/observability"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

type Clients struct {
	Redis   *goredis.Client
	Gateway llm.Gateway
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	rdb, err := redis.NewClient(ctx, log, cfg.Redis)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}

	// LLM
	gw, err := backend.New(cfg.LLM, log, metrics)
	if err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("init llm backend: %w", err)
	}
	hctx, cancel := context.WithTimeout(ctx, cfg.LLM.HealthTimeout.Duration)
	healthy := gw.HealthCheck(hctx)
	cancel()
	if !healthy {
		log.Warn("llm backend not reachable at startup (continuing)", "backend", gw.Name(), "base_url", cfg.LLM.BaseURL)
	}

	return Clients{Redis: rdb, Gateway: gw}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
