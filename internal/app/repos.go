package app

import (
	"fmt"

	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/persona"
	"github.com/yungbote/nono-backend/internal/platform/logger"
	"github.com/yungbote/nono-backend/internal/session"
)

type Stores struct {
	Sessions *session.Registry
	Personas *persona.Registry
}

func wireStores(log *logger.Logger, cfg *config.Config, clients Clients) (Stores, error) {
	log.Info("Wiring stores...")
	personas, err := persona.Load(cfg.Chat.PersonasPath, log)
	if err != nil {
		return Stores{}, fmt.Errorf("load personas: %w", err)
	}
	sessions, err := session.New(clients.Redis, cfg.Chat.SessionTimeout.Duration, log)
	if err != nil {
		return Stores{}, fmt.Errorf("init session registry: %w", err)
	}
	return Stores{Sessions: sessions, Personas: personas}, nil
}
