package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/nono-backend/internal/config"
	nonohttp "github.com/yungbote/nono-backend/internal/http"
	"github.com/yungbote/nono-backend/internal/observability"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	Metrics  *observability.Metrics
	Clients  Clients
	Stores   Stores
	Services Services
	Server   *nonohttp.Server

	shutdownOtel func(context.Context) error
}

// New wires the process. Redis must answer; an LLM backend that is down at
// startup only logs a warning.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithLogger(ctx, cfg, log)
}

func NewWithLogger(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	shutdownOtel := observability.InitOTel(ctx, log, cfg.Otel, cfg.Env)
	metrics := observability.New(cfg.Metrics)

	clients, err := wireClients(ctx, log, cfg, metrics)
	if err != nil {
		_ = shutdownOtel(context.Background())
		log.Sync()
		return nil, err
	}

	stores, err := wireStores(log, cfg, clients)
	if err != nil {
		clients.Close()
		_ = shutdownOtel(context.Background())
		log.Sync()
		return nil, err
	}

	serviceset := wireServices(log, cfg, clients, stores, metrics)
	handlerset := wireHandlers(log, serviceset, metrics)

	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	server := nonohttp.NewServer(cfg.HTTP, nonohttp.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		PublicDir:       cfg.HTTP.PublicDir,
		MaxRequestBytes: cfg.HTTP.MaxRequestBytes,
		ChatHandler:     handlerset.Chat,
		SessionHandler:  handlerset.Session,
		HealthHandler:   handlerset.Health,
		WSHandler:       handlerset.WS,
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		Metrics:      metrics,
		Clients:      clients,
		Stores:       stores,
		Services:     serviceset,
		Server:       server,
		shutdownOtel: shutdownOtel,
	}, nil
}

// Run serves HTTP and refreshes the store gauges until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	a.Metrics.StartRedisCollector(gctx, a.Log, a.Clients.Redis, a.Services.Session.CountSessions)

	g.Go(func() error {
		return a.Server.Run(gctx)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.shutdownOtel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownOtel(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
