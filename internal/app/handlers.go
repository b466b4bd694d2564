package app

import (
	httpH "github.com/yungbote/nono-backend/internal/http/handlers"
	"github.com/yungbote/nono-backend/internal/observability"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

type Handlers struct {
	Chat    *httpH.ChatHandler
	Session *httpH.SessionHandler
	Health  *httpH.HealthHandler
	WS      *httpH.WSHandler
}

func wireHandlers(log *logger.Logger, services Services, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Chat:    httpH.NewChatHandler(log, services.Chat),
		Session: httpH.NewSessionHandler(services.Session, services.Chat),
		Health:  httpH.NewHealthHandler(services.Status),
		WS:      httpH.NewWSHandler(log, services.Chat, metrics),
	}
}
