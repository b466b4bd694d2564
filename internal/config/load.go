package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/nono-backend/internal/platform/envutil"
)

const (
	BackendLMStudio = "lmstudio"
	BackendOllama   = "ollama"
	BackendMock     = "mock"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if strings.TrimSpace(u) == "" {
			d.Duration = 0
			return nil
		}
		dd, err := time.ParseDuration(u)
		if err != nil {
			return err
		}
		d.Duration = dd
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func defaultConfig() *Config {
	return &Config{
		Env:      "development",
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr:              ":8000",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   1 << 20,
			PublicDir:         "public",
			CORSOrigins:       []string{"*"},
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DialTimeout: Duration{Duration: 5 * time.Second},
		},
		LLM: LLMConfig{
			Backend:         BackendLMStudio,
			Model:           "llama2",
			EmbedModel:      "nomic-embed-text",
			HealthTimeout:   Duration{Duration: 5 * time.Second},
			ListTimeout:     Duration{Duration: 10 * time.Second},
			GenerateTimeout: Duration{Duration: 120 * time.Second},
			EmbedTimeout:    Duration{Duration: 60 * time.Second},
			PullTimeout:     Duration{Duration: 300 * time.Second},
		},
		Chat: ChatConfig{
			MaxContextMessages: 10,
			SessionTimeout:     Duration{Duration: time.Hour},
			PersonasPath:       filepath.Join("config", "personas.yaml"),
		},
		Otel: OtelConfig{
			ServiceName: "nono-backend",
			SampleRatio: 0.1,
		},
		Metrics: MetricsConfig{
			ScrapeInterval: Duration{Duration: 10 * time.Second},
		},
	}
}

// Load builds the process configuration: defaults, then an optional JSON file
// (NONO_CONFIG_PATH or ./config/config.json), then environment overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("NONO_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.json")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}

	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		// Decode over the defaults so a partial file only overrides what it names.
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := envutil.String("LOG_MODE"); ok {
		cfg.Env = v
	}
	if v, ok := envutil.String("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := envutil.String("NONO_HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}
	if v, ok := envutil.String("PUBLIC_DIR"); ok {
		cfg.HTTP.PublicDir = v
	}
	if v, ok := envutil.String("REDIS_ADDR"); ok {
		cfg.Redis.Addr = v
	}
	if v, ok := envutil.String("REDIS_PASSWORD"); ok {
		cfg.Redis.Password = v
	}
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)

	if v, ok := envutil.String("LLM_BACKEND"); ok {
		cfg.LLM.Backend = v
	}
	if v, ok := envutil.String("LLM_BASE_URL"); ok {
		cfg.LLM.BaseURL = v
	}
	if v, ok := envutil.String("LLM_MODEL"); ok {
		cfg.LLM.Model = v
	}
	if v, ok := envutil.String("LLM_EMBED_MODEL"); ok {
		cfg.LLM.EmbedModel = v
	}
	if v, ok := envutil.String("LLM_API_KEY"); ok {
		cfg.LLM.APIKey = v
	}

	cfg.Chat.MaxContextMessages = envutil.Int("MAX_CONTEXT_MESSAGES", cfg.Chat.MaxContextMessages)
	if secs := envutil.Int("SESSION_TIMEOUT", 0); secs > 0 {
		cfg.Chat.SessionTimeout = Duration{Duration: time.Duration(secs) * time.Second}
	}
	if v, ok := envutil.String("PERSONAS_PATH"); ok {
		cfg.Chat.PersonasPath = v
	}

	cfg.Otel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Otel.Enabled)
	if v, ok := envutil.String("OTEL_SERVICE_NAME"); ok {
		cfg.Otel.ServiceName = v
	}
	if v, ok := envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
		cfg.Otel.Endpoint = v
	}
	cfg.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Otel.Insecure)
	if v, ok := envutil.String("OTEL_EXPORTER_OTLP_HEADERS"); ok {
		cfg.Otel.Headers = v
	}
	if v, ok := envutil.String("OTEL_SAMPLER_RATIO"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Otel.SampleRatio = f
		}
	}

	cfg.Metrics.Enabled = envutil.Bool("METRICS_ENABLED", cfg.Metrics.Enabled)
	if secs := envutil.Int("METRICS_SCRAPE_INTERVAL_SECONDS", 0); secs > 0 {
		cfg.Metrics.ScrapeInterval = Duration{Duration: time.Duration(secs) * time.Second}
	}
}

func (cfg *Config) normalize() error {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8000"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 1 << 20
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr is required")
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db=%d", cfg.Redis.DB)
	}

	m := &cfg.LLM
	m.Backend = strings.ToLower(strings.TrimSpace(m.Backend))
	m.BaseURL = strings.TrimRight(strings.TrimSpace(m.BaseURL), "/")
	switch m.Backend {
	case "lm_studio", "lmstudio", "oai_http", "openai_http":
		m.Backend = BackendLMStudio
		if m.BaseURL == "" {
			m.BaseURL = "http://localhost:1234"
		}
	case BackendOllama:
		if m.BaseURL == "" {
			m.BaseURL = "http://localhost:11434"
		}
	case BackendMock:
	default:
		return fmt.Errorf("invalid llm.backend=%q", m.Backend)
	}
	if m.HealthTimeout.Duration <= 0 {
		m.HealthTimeout = Duration{Duration: 5 * time.Second}
	}
	if m.ListTimeout.Duration <= 0 {
		m.ListTimeout = Duration{Duration: 10 * time.Second}
	}
	if m.GenerateTimeout.Duration <= 0 {
		m.GenerateTimeout = Duration{Duration: 120 * time.Second}
	}
	if m.EmbedTimeout.Duration <= 0 {
		m.EmbedTimeout = Duration{Duration: 60 * time.Second}
	}
	if m.PullTimeout.Duration <= 0 {
		m.PullTimeout = Duration{Duration: 300 * time.Second}
	}
	if m.StreamTimeout.Duration < 0 {
		return errors.New("invalid llm.stream_timeout")
	}

	if cfg.Chat.MaxContextMessages <= 0 {
		return fmt.Errorf("invalid chat.max_context_messages=%d", cfg.Chat.MaxContextMessages)
	}
	if cfg.Chat.SessionTimeout.Duration < time.Second {
		return errors.New("chat.session_timeout must be at least 1s")
	}
	if strings.TrimSpace(cfg.Chat.PersonasPath) == "" {
		cfg.Chat.PersonasPath = filepath.Join("config", "personas.yaml")
	}

	if cfg.Metrics.ScrapeInterval.Duration <= 0 {
		cfg.Metrics.ScrapeInterval = Duration{Duration: 10 * time.Second}
	}

	if cfg.Otel.SampleRatio < 0 {
		cfg.Otel.SampleRatio = 0
	}
	if cfg.Otel.SampleRatio > 1 {
		cfg.Otel.SampleRatio = 1
	}
	return nil
}
