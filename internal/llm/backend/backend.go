package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/llm"
	"github.com/yungbote/nono-backend/internal/llm/lmstudio"
	"github.com/yungbote/nono-backend/internal/llm/mock"
	"github.com/yungbote/nono-backend/internal/llm/ollama"
	"github.com/yungbote/nono-backend/internal/observability"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

// New builds the single gateway selected by cfg.Backend. m may be nil.
func New(cfg config.LLMConfig, log *logger.Logger, m *observability.Metrics) (llm.Gateway, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	var gw llm.Gateway
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.BackendMock:
		gw = mock.New()
	case config.BackendLMStudio:
		c, err := lmstudio.New(cfg)
		if err != nil {
			return nil, err
		}
		gw = c
	case config.BackendOllama:
		c, err := ollama.New(cfg)
		if err != nil {
			return nil, err
		}
		gw = c
	default:
		return nil, fmt.Errorf("unsupported llm backend %q", cfg.Backend)
	}

	return &logged{
		Gateway: gw,
		log:     log.With("service", "LLMGateway", "backend", gw.Name()),
		metrics: m,
	}, nil
}

// logged reports gateway failures that the contract otherwise swallows and
// records per-call metrics.
type logged struct {
	llm.Gateway
	log     *logger.Logger
	metrics *observability.Metrics
}

func (g *logged) observe(op string, start time.Time, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	g.metrics.ObserveLLM(g.Gateway.Name(), op, status, time.Since(start))
}

func (g *logged) HealthCheck(ctx context.Context) bool {
	start := time.Now()
	ok := g.Gateway.HealthCheck(ctx)
	g.observe("health", start, !ok)
	if !ok {
		g.log.Warn("llm health check failed")
	}
	return ok
}

func (g *logged) Generate(ctx context.Context, req llm.Request) (string, error) {
	start := time.Now()
	out, err := g.Gateway.Generate(ctx, req)
	g.observe("generate", start, err != nil)
	if err != nil {
		g.log.Error("llm generate failed", "error", err)
	}
	return out, err
}

// GenerateStream only times stream setup; fragment delivery is paced by the
// caller.
func (g *logged) GenerateStream(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	start := time.Now()
	s, err := g.Gateway.GenerateStream(ctx, req)
	g.observe("stream", start, err != nil)
	if err != nil {
		g.log.Error("llm generate stream failed", "error", err)
	}
	return s, err
}

func (g *logged) ListModels(ctx context.Context) []string {
	start := time.Now()
	models := g.Gateway.ListModels(ctx)
	g.observe("models", start, false)
	if len(models) == 0 {
		g.log.Debug("llm list models returned nothing")
	}
	return models
}

func (g *logged) Embed(ctx context.Context, text string) ([]float64, error) {
	start := time.Now()
	v, err := g.Gateway.Embed(ctx, text)
	g.observe("embed", start, err != nil)
	if err != nil {
		g.log.Error("llm embed failed", "error", err)
	}
	return v, err
}

func (g *logged) manager() (llm.ModelManager, bool) {
	mm, ok := g.Gateway.(llm.ModelManager)
	return mm, ok
}

// Model is "" for backends without model management.
func (g *logged) Model() string {
	if mm, ok := g.manager(); ok {
		return mm.Model()
	}
	return ""
}

func (g *logged) PullModel(ctx context.Context, name string) error {
	mm, ok := g.manager()
	if !ok {
		return llm.Wrap(g.Gateway.Name(), "pull", llm.ErrUnsupported)
	}
	start := time.Now()
	err := mm.PullModel(ctx, name)
	g.observe("pull", start, err != nil)
	if err != nil {
		g.log.Error("llm pull model failed", "model", name, "error", err)
		return err
	}
	g.log.Info("llm model pulled", "model", name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (g *logged) UseModel(ctx context.Context, name string) error {
	mm, ok := g.manager()
	if !ok {
		return llm.Wrap(g.Gateway.Name(), "use", llm.ErrUnsupported)
	}
	prev := mm.Model()
	start := time.Now()
	err := mm.UseModel(ctx, name)
	g.observe("use", start, err != nil)
	if err != nil {
		g.log.Warn("llm model switch refused", "model", name, "error", err)
		return err
	}
	g.log.Info("llm model switched", "from", prev, "to", name)
	return nil
}

var _ llm.ModelManager = (*logged)(nil)
