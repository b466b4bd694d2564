package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"NONO_CONFIG_PATH", "LOG_MODE", "LOG_LEVEL", "NONO_HTTP_ADDR", "PUBLIC_DIR",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"LLM_BACKEND", "LLM_BASE_URL", "LLM_MODEL", "LLM_EMBED_MODEL", "LLM_API_KEY",
		"MAX_CONTEXT_MESSAGES", "SESSION_TIMEOUT", "PERSONAS_PATH",
		"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_INSECURE", "OTEL_EXPORTER_OTLP_HEADERS", "OTEL_SAMPLER_RATIO",
		"METRICS_ENABLED", "METRICS_SCRAPE_INTERVAL_SECONDS",
	} {
		t.Setenv(k, "")
	}
	// Keep Load from picking up a ./config/config.json next to the test binary.
	t.Chdir(t.TempDir())
}

func TestDurationUnmarshal(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{`"5s"`, 5 * time.Second},
		{`"1m30s"`, 90 * time.Second},
		{`1000`, 1000},
		{`null`, 0},
		{`""`, 0},
	}
	for _, tc := range cases {
		var d Duration
		if err := json.Unmarshal([]byte(tc.in), &d); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if d.Duration != tc.want {
			t.Fatalf("unmarshal %s: got %v want %v", tc.in, d.Duration, tc.want)
		}
	}

	var d Duration
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8000" {
		t.Fatalf("addr=%q", cfg.HTTP.Addr)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 0 {
		t.Fatalf("redis=%+v", cfg.Redis)
	}
	if cfg.LLM.Backend != BackendLMStudio || cfg.LLM.BaseURL != "http://localhost:1234" {
		t.Fatalf("llm=%+v", cfg.LLM)
	}
	if cfg.LLM.Model != "llama2" || cfg.LLM.EmbedModel != "nomic-embed-text" {
		t.Fatalf("models=%q/%q", cfg.LLM.Model, cfg.LLM.EmbedModel)
	}
	if cfg.Chat.MaxContextMessages != 10 {
		t.Fatalf("max_context_messages=%d", cfg.Chat.MaxContextMessages)
	}
	if cfg.Chat.SessionTimeout.Duration != time.Hour {
		t.Fatalf("session_timeout=%v", cfg.Chat.SessionTimeout.Duration)
	}
	if cfg.LLM.PullTimeout.Duration != 300*time.Second {
		t.Fatalf("pull_timeout=%v", cfg.LLM.PullTimeout.Duration)
	}
	if cfg.LLM.GenerateTimeout.Duration != 120*time.Second || cfg.LLM.HealthTimeout.Duration != 5*time.Second {
		t.Fatalf("timeouts=%+v", cfg.LLM)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"redis": {"addr": "redis:6380", "db": 2},
		"llm": {"backend": "ollama", "model": "mistral", "generate_timeout": "30s"},
		"chat": {"max_context_messages": 4}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("NONO_CONFIG_PATH", path)
	t.Setenv("LLM_MODEL", "phi3")
	t.Setenv("SESSION_TIMEOUT", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.Addr != "redis:6380" || cfg.Redis.DB != 2 {
		t.Fatalf("redis=%+v", cfg.Redis)
	}
	if cfg.LLM.Backend != BackendOllama || cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Fatalf("llm backend=%q base=%q", cfg.LLM.Backend, cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "phi3" {
		t.Fatalf("env should override file model, got %q", cfg.LLM.Model)
	}
	if cfg.LLM.GenerateTimeout.Duration != 30*time.Second {
		t.Fatalf("generate_timeout=%v", cfg.LLM.GenerateTimeout.Duration)
	}
	if cfg.Chat.MaxContextMessages != 4 {
		t.Fatalf("max_context_messages=%d", cfg.Chat.MaxContextMessages)
	}
	if cfg.Chat.SessionTimeout.Duration != 2*time.Minute {
		t.Fatalf("session_timeout=%v", cfg.Chat.SessionTimeout.Duration)
	}
	// Fields the file did not name keep their defaults.
	if cfg.HTTP.Addr != ":8000" {
		t.Fatalf("addr=%q", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"backend":     {"LLM_BACKEND": "openai"},
		"max_context": {"MAX_CONTEXT_MESSAGES": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("NONO_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.json"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing NONO_CONFIG_PATH file")
	}
}

func TestLoadBackendAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_BACKEND", "LM_Studio")
	t.Setenv("LLM_BASE_URL", "http://gpu-box:1234/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Backend != BackendLMStudio {
		t.Fatalf("backend=%q", cfg.LLM.Backend)
	}
	if cfg.LLM.BaseURL != "http://gpu-box:1234" {
		t.Fatalf("base_url=%q", cfg.LLM.BaseURL)
	}
}
