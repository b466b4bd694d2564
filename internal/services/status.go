package services

import (
	"context"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/nono-backend/internal/clients/redis"
	"github.com/yungbote/nono-backend/internal/llm"
	"github.com/yungbote/nono-backend/internal/persona"
	"github.com/yungbote/nono-backend/internal/platform/isotime"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

type Health struct {
	Status    string `json:"status"`
	Redis     bool   `json:"redis"`
	LLM       bool   `json:"llm"`
	Backend   string `json:"backend"`
	Timestamp string `json:"timestamp"`
}

type Models struct {
	Models  []string `json:"models"`
	Backend string   `json:"backend"`
	Active  string   `json:"active,omitempty"`
}

// ModelChange reports a pull or switch. Active is the model generations use
// afterwards.
type ModelChange struct {
	Model   string `json:"model"`
	Backend string `json:"backend"`
	Active  string `json:"active"`
}

type StatusService interface {
	// Health probes Redis and the backend concurrently. It never fails; an
	// unreachable dependency only degrades the status.
	Health(ctx context.Context) Health
	Models(ctx context.Context) (Models, error)
	ListPersonas() ([]persona.Info, error)

	// PullModel asks the backend to download a model; it does not switch to it.
	PullModel(ctx context.Context, name string) (ModelChange, error)
	// UseModel switches generation to a model the backend already lists.
	UseModel(ctx context.Context, name string) (ModelChange, error)
}

type statusService struct {
	rdb       goredis.UniversalClient
	gateway   llm.Gateway
	personas  *persona.Registry
	pingLimit time.Duration
	log       *logger.Logger

	now func() time.Time
}

func NewStatusService(
	baseLog *logger.Logger,
	rdb goredis.UniversalClient,
	gateway llm.Gateway,
	personas *persona.Registry,
) StatusService {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &statusService{
		rdb:       rdb,
		gateway:   gateway,
		personas:  personas,
		pingLimit: 2 * time.Second,
		log:       baseLog.With("service", "StatusService"),
		now:       time.Now,
	}
}

func (s *statusService) Health(ctx context.Context) Health {
	var redisOK, llmOK bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.rdb == nil {
			return nil
		}
		if err := redis.Ping(gctx, s.rdb, s.pingLimit); err != nil {
			s.log.Warn("redis health check failed", "error", err)
			return nil
		}
		redisOK = true
		return nil
	})
	g.Go(func() error {
		if s.gateway == nil {
			return nil
		}
		llmOK = s.gateway.HealthCheck(gctx)
		return nil
	})
	_ = g.Wait()

	h := Health{
		Status:    StatusDegraded,
		Redis:     redisOK,
		LLM:       llmOK,
		Timestamp: isotime.Format(s.now()),
	}
	if s.gateway != nil {
		h.Backend = s.gateway.Name()
	}
	if redisOK && llmOK {
		h.Status = StatusHealthy
	}
	return h
}

func (s *statusService) Models(ctx context.Context) (Models, error) {
	if s.gateway == nil {
		return Models{}, unavailable()
	}
	models := s.gateway.ListModels(ctx)
	if models == nil {
		models = []string{}
	}
	out := Models{Models: models, Backend: s.gateway.Name()}
	if mm, ok := s.gateway.(llm.ModelManager); ok {
		out.Active = mm.Model()
	}
	return out, nil
}

func (s *statusService) manager(name string) (llm.ModelManager, string, error) {
	if s.gateway == nil {
		return nil, "", unavailable()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", invalid("model is required")
	}
	mm, ok := s.gateway.(llm.ModelManager)
	if !ok {
		return nil, "", modelFailed(llm.Wrap(s.gateway.Name(), "model", llm.ErrUnsupported))
	}
	return mm, name, nil
}

func (s *statusService) PullModel(ctx context.Context, name string) (ModelChange, error) {
	mm, name, err := s.manager(name)
	if err != nil {
		return ModelChange{}, err
	}
	if err := mm.PullModel(ctx, name); err != nil {
		return ModelChange{}, modelFailed(err)
	}
	return ModelChange{Model: name, Backend: s.gateway.Name(), Active: mm.Model()}, nil
}

func (s *statusService) UseModel(ctx context.Context, name string) (ModelChange, error) {
	mm, name, err := s.manager(name)
	if err != nil {
		return ModelChange{}, err
	}
	if err := mm.UseModel(ctx, name); err != nil {
		return ModelChange{}, modelFailed(err)
	}
	return ModelChange{Model: name, Backend: s.gateway.Name(), Active: mm.Model()}, nil
}

func (s *statusService) ListPersonas() ([]persona.Info, error) {
	if s.personas == nil {
		return nil, unavailable()
	}
	return s.personas.List(), nil
}
