package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `json:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout"`
	MaxRequestBytes   int64    `json:"max_request_bytes"`

	// PublicDir holds the optional browser UI; `/` and `/static/*` are only
	// mounted when it exists.
	PublicDir string `json:"public_dir,omitempty"`

	CORSOrigins []string `json:"cors_origins,omitempty"`
}

type RedisConfig struct {
	Addr        string   `json:"addr"`
	Password    string   `json:"password,omitempty"`
	DB          int      `json:"db"`
	DialTimeout Duration `json:"dial_timeout,omitempty"`
}

type LLMConfig struct {
	// Backend is one of "lmstudio", "ollama" or "mock". Exactly one backend is
	// active per process.
	Backend string `json:"backend"`

	BaseURL    string `json:"base_url,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	Model      string `json:"model,omitempty"`
	EmbedModel string `json:"embed_model,omitempty"`

	HealthTimeout   Duration `json:"health_timeout,omitempty"`
	ListTimeout     Duration `json:"list_timeout,omitempty"`
	GenerateTimeout Duration `json:"generate_timeout,omitempty"`
	EmbedTimeout    Duration `json:"embed_timeout,omitempty"`
	PullTimeout     Duration `json:"pull_timeout,omitempty"`

	// StreamTimeout bounds a whole streamed generation. Zero leaves streams to
	// client cancellation.
	StreamTimeout Duration `json:"stream_timeout,omitempty"`
}

type ChatConfig struct {
	MaxContextMessages int      `json:"max_context_messages"`
	SessionTimeout     Duration `json:"session_timeout"`
	PersonasPath       string   `json:"personas_path"`
}

type OtelConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
	// Headers is a comma-separated list of key=value pairs sent with every export.
	Headers     string  `json:"headers,omitempty"`
	SampleRatio float64 `json:"sample_ratio,omitempty"`
}

type MetricsConfig struct {
	Enabled        bool     `json:"enabled,omitempty"`
	ScrapeInterval Duration `json:"scrape_interval,omitempty"`
}

type Config struct {
	Env      string        `json:"env"`
	LogLevel string        `json:"log_level,omitempty"`
	HTTP     HTTPConfig    `json:"http"`
	Redis    RedisConfig   `json:"redis"`
	LLM      LLMConfig     `json:"llm"`
	Chat     ChatConfig    `json:"chat"`
	Otel     OtelConfig    `json:"otel,omitempty"`
	Metrics  MetricsConfig `json:"metrics,omitempty"`
}
