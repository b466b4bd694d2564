package app

import (
	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/observability"
	"github.com/yungbote/nono-backend/internal/platform/logger"
	"github.com/yungbote/nono-backend/internal/services"
)

type Services struct {
	Chat    services.ChatService
	Session services.SessionService
	Status  services.StatusService
}

func wireServices(log *logger.Logger, cfg *config.Config, clients Clients, stores Stores, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")
	maxContext := cfg.Chat.MaxContextMessages
	return Services{
		Chat:    services.NewChatService(log, clients.Redis, stores.Sessions, stores.Personas, clients.Gateway, maxContext, metrics),
		Session: services.NewSessionService(log, clients.Redis, stores.Sessions, stores.Personas, maxContext),
		Status:  services.NewStatusService(log, clients.Redis, clients.Gateway, stores.Personas),
	}
}
