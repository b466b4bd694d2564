package backend

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/llm"
	"github.com/yungbote/nono-backend/internal/observability"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

func TestNewSelectsBackend(t *testing.T) {
	cases := []struct {
		cfg  config.LLMConfig
		want string
	}{
		{config.LLMConfig{Backend: "mock"}, "mock"},
		{config.LLMConfig{Backend: "lmstudio", BaseURL: "http://localhost:1234"}, "lmstudio"},
		{config.LLMConfig{Backend: "ollama", BaseURL: "http://localhost:11434"}, "ollama"},
	}
	for _, tc := range cases {
		gw, err := New(tc.cfg, logger.Nop(), nil)
		if err != nil {
			t.Fatalf("New(%s): %v", tc.cfg.Backend, err)
		}
		if gw.Name() != tc.want {
			t.Fatalf("name=%q want %q", gw.Name(), tc.want)
		}
	}
}

func TestNewRejectsUnknown(t *testing.T) {
	if _, err := New(config.LLMConfig{Backend: "openai"}, logger.Nop(), nil); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := New(config.LLMConfig{Backend: "lmstudio"}, logger.Nop(), nil); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}

func TestMockThroughWrapper(t *testing.T) {
	gw, err := New(config.LLMConfig{Backend: "mock"}, logger.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := gw.Generate(context.Background(), llm.Request{Prompt: "User: hi\nAssistant:"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "mock: hi" {
		t.Fatalf("out=%q", out)
	}

	s, err := gw.GenerateStream(context.Background(), llm.Request{Prompt: "User: hello there, how are you today?\nAssistant:"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	full, err := llm.Collect(s)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if full != "mock: hello there, how are you today?" {
		t.Fatalf("full=%q", full)
	}
}

func TestWrapperRecordsMetrics(t *testing.T) {
	m := observability.New(config.MetricsConfig{Enabled: true})
	gw, err := New(config.LLMConfig{Backend: "mock"}, logger.Nop(), m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := gw.Generate(context.Background(), llm.Request{Prompt: "User: hi"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !gw.HealthCheck(context.Background()) {
		t.Fatalf("mock should be healthy")
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	for _, want := range []string{
		`nono_llm_requests_total{backend="mock",op="generate",status="ok"} 1`,
		`nono_llm_requests_total{backend="mock",op="health",status="ok"} 1`,
	} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("missing %q in:\n%s", want, buf.String())
		}
	}
}

// bare is a gateway without model management.
type bare struct{ llm.Gateway }

func (bare) Name() string { return "bare" }

func TestWrapperForwardsModelManagement(t *testing.T) {
	ctx := context.Background()
	m := observability.New(config.MetricsConfig{Enabled: true})
	gw, err := New(config.LLMConfig{Backend: "mock"}, logger.Nop(), m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mm, ok := gw.(llm.ModelManager)
	if !ok {
		t.Fatalf("wrapped gateway does not expose model management")
	}
	if mm.Model() != "mock-model" {
		t.Fatalf("model=%q", mm.Model())
	}
	if err := mm.UseModel(ctx, "tiny"); !errors.Is(err, llm.ErrModelNotFound) {
		t.Fatalf("use before pull err=%v", err)
	}
	if err := mm.PullModel(ctx, "tiny"); err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if err := mm.UseModel(ctx, "tiny"); err != nil {
		t.Fatalf("UseModel: %v", err)
	}
	if mm.Model() != "tiny" {
		t.Fatalf("model=%q", mm.Model())
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	for _, want := range []string{
		`nono_llm_requests_total{backend="mock",op="pull",status="ok"} 1`,
		`nono_llm_requests_total{backend="mock",op="use",status="error"} 1`,
		`nono_llm_requests_total{backend="mock",op="use",status="ok"} 1`,
	} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("missing %q in:\n%s", want, buf.String())
		}
	}
}

func TestWrapperWithoutModelManagement(t *testing.T) {
	g := &logged{Gateway: bare{}, log: logger.Nop()}
	if g.Model() != "" {
		t.Fatalf("model=%q", g.Model())
	}
	for _, err := range []error{
		g.PullModel(context.Background(), "x"),
		g.UseModel(context.Background(), "x"),
	} {
		var ge *llm.Error
		if !errors.Is(err, llm.ErrUnsupported) || !errors.As(err, &ge) || ge.Backend != "bare" {
			t.Fatalf("err=%v", err)
		}
	}
}
