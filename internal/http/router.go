package http

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/nono-backend/internal/http/handlers"
	httpMW "github.com/yungbote/nono-backend/internal/http/middleware"
	"github.com/yungbote/nono-backend/internal/http/response"
	"github.com/yungbote/nono-backend/internal/observability"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	Metrics         *observability.Metrics
	ServiceName     string
	CORSOrigins     []string
	PublicDir       string
	MaxRequestBytes int64

	ChatHandler    *httpH.ChatHandler
	SessionHandler *httpH.SessionHandler
	HealthHandler  *httpH.HealthHandler
	WSHandler      *httpH.WSHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.RequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Recover(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.BodyLimit(cfg.MaxRequestBytes))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
		r.GET("/personas", cfg.HealthHandler.Personas)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// UI
	mountUI(r, cfg.PublicDir)

	api := r.Group("/api")
	{
		if cfg.SessionHandler != nil {
			api.POST("/session/create", cfg.SessionHandler.CreateSession)
			api.GET("/sessions", cfg.SessionHandler.ListSessions)
		}
		if cfg.ChatHandler != nil {
			api.POST("/chat", cfg.ChatHandler.Chat)
			api.POST("/chat/stream", cfg.ChatHandler.ChatStream)
		}
		if cfg.HealthHandler != nil {
			api.GET("/models", cfg.HealthHandler.Models)
			api.POST("/models/pull", cfg.HealthHandler.PullModel)
			api.POST("/models/use", cfg.HealthHandler.UseModel)
		}
	}

	// Legacy, unprefixed routes
	if cfg.ChatHandler != nil {
		r.POST("/chat", cfg.ChatHandler.Chat)
	}
	if cfg.SessionHandler != nil {
		r.POST("/session/start", cfg.SessionHandler.StartSession)
		r.GET("/session/:user_id/history", cfg.SessionHandler.History)
		r.DELETE("/session/:user_id/clear", cfg.SessionHandler.Clear)
		r.GET("/sessions/active", cfg.SessionHandler.ActiveSessions)
	}

	// Realtime (WebSocket)
	if cfg.WSHandler != nil {
		r.GET("/ws/chat/:user_id", cfg.WSHandler.Chat)
	}

	return r
}

// mountUI serves dir/index.html at "/" and dir under /static when dir exists.
func mountUI(r *gin.Engine, dir string) {
	index := ""
	if dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			r.Static("/static", dir)
			if _, err := os.Stat(filepath.Join(dir, "index.html")); err == nil {
				index = filepath.Join(dir, "index.html")
			}
		}
	}
	r.GET("/", func(c *gin.Context) {
		if index == "" {
			response.RespondError(c, http.StatusNotFound, "not_found", errors.New("UI not found"))
			return
		}
		c.File(index)
	})
}
