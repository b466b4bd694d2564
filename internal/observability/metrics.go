package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

// Metrics is the process metric set. A nil *Metrics is valid and records
// nothing, so callers never need to check whether metrics are enabled.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec

	chatTurns     *CounterVec
	wsConnections *Gauge

	redisUp        *Gauge
	redisPing      *Gauge
	activeSessions *Gauge

	scrapeInterval time.Duration
}

// New returns nil when metrics are disabled.
func New(cfg config.MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	interval := cfg.ScrapeInterval.Duration
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Metrics{
		apiRequests: NewCounterVec("nono_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"nono_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("nono_api_inflight_requests", "In-flight API requests."),

		llmRequests: NewCounterVec("nono_llm_requests_total", "LLM gateway calls by backend/op/status.", []string{"backend", "op", "status"}),
		llmLatency: NewHistogramVec(
			"nono_llm_request_duration_seconds",
			"LLM gateway call latency in seconds by backend/op/status.",
			[]string{"backend", "op", "status"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),

		chatTurns:     NewCounterVec("nono_chat_turns_total", "Completed chat turns by channel/persona/status.", []string{"channel", "persona", "status"}),
		wsConnections: NewGauge("nono_ws_connections", "Open WebSocket chat connections."),

		redisUp:        NewGauge("nono_redis_up", "Whether the last Redis ping succeeded."),
		redisPing:      NewGauge("nono_redis_ping_seconds", "Latency of the last successful Redis ping."),
		activeSessions: NewGauge("nono_active_sessions", "Live session records in Redis."),

		scrapeInterval: interval,
	}
}

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(m.WriteHTTP)
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.chatTurns, m.wsConnections,
		m.redisUp, m.redisPing, m.activeSessions,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func apiLabels(method, route, status string) (string, string, string) {
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unmatched"
	}
	if status == "" {
		status = "0"
	}
	return method, route, status
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method, route, status = apiLabels(method, route, status)
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

// CountAPI records a request without a latency sample.
func (m *Metrics) CountAPI(method, route, status string) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(apiLabels(method, route, status))
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveLLM records one gateway call; status is "ok" or "error".
func (m *Metrics) ObserveLLM(backend, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	backend = strings.TrimSpace(backend)
	m.llmRequests.Inc(backend, op, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), backend, op, status)
	}
}

// IncChatTurn counts a finished turn; channel is "http", "stream" or "ws".
func (m *Metrics) IncChatTurn(channel, persona, status string) {
	if m == nil {
		return
	}
	m.chatTurns.Inc(channel, persona, status)
}

func (m *Metrics) WSConnected() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) WSDisconnected() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// StartRedisCollector pings rdb and counts live sessions every scrape
// interval until ctx is done. countSessions may be nil.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient, countSessions func(context.Context) (int, error)) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collectRedis(ctx, log, rdb, countSessions)
			}
		}
	}()
}

func (m *Metrics) collectRedis(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient, countSessions func(context.Context) (int, error)) {
	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		m.redisUp.Set(0)
		if log != nil {
			log.Warn("metrics: redis ping failed", "error", err)
		}
		return
	}
	m.redisUp.Set(1)
	m.redisPing.Set(time.Since(start).Seconds())
	if countSessions == nil {
		return
	}
	n, err := countSessions(ctx)
	if err != nil {
		if log != nil {
			log.Warn("metrics: session count failed", "error", err)
		}
		return
	}
	m.activeSessions.Set(float64(n))
}
