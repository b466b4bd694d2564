package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/nono-backend/internal/memory"
	"github.com/yungbote/nono-backend/internal/persona"
	"github.com/yungbote/nono-backend/internal/platform/apierr"
	"github.com/yungbote/nono-backend/internal/platform/ctxutil"
	"github.com/yungbote/nono-backend/internal/platform/isotime"
	"github.com/yungbote/nono-backend/internal/platform/logger"
	"github.com/yungbote/nono-backend/internal/session"
)

type CreatedSession struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
	Persona   string `json:"persona"`
}

type SessionService interface {
	// CreateSession stores a session under any persona key and returns a
	// display-only session id for it.
	CreateSession(ctx context.Context, userID, personaKey string, metadata map[string]any) (CreatedSession, error)
	// StartSession requires a loaded persona and seeds the user-id buffer's
	// metadata.
	StartSession(ctx context.Context, userID, personaKey string, metadata map[string]any) (session.Session, error)
	ListSessions(ctx context.Context) []session.Session
	ActiveUsers(ctx context.Context) ([]string, error)
	CountSessions(ctx context.Context) (int, error)
}

type sessionService struct {
	rdb        goredis.Cmdable
	sessions   *session.Registry
	personas   *persona.Registry
	maxContext int
	log        *logger.Logger

	now func() time.Time
}

func NewSessionService(
	baseLog *logger.Logger,
	rdb goredis.Cmdable,
	sessions *session.Registry,
	personas *persona.Registry,
	maxContext int,
) SessionService {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &sessionService{
		rdb:        rdb,
		sessions:   sessions,
		personas:   personas,
		maxContext: maxContext,
		log:        baseLog.With("service", "SessionService"),
		now:        time.Now,
	}
}

func (s *sessionService) CreateSession(ctx context.Context, userID, personaKey string, metadata map[string]any) (res CreatedSession, err error) {
	if s.sessions == nil {
		return CreatedSession{}, unavailable()
	}
	if strings.TrimSpace(userID) == "" {
		return CreatedSession{}, invalid("user_id is required")
	}
	if strings.TrimSpace(personaKey) == "" {
		personaKey = DefaultChatPersona
	}
	ctx, span := startSpan(ctx, "session.create")
	defer endSpan(span, &err)

	if _, err := s.sessions.Create(ctx, userID, personaKey, metadata); err != nil {
		return CreatedSession{}, storeFailed("create session", err)
	}
	now := s.now()
	sid := session.DisplayID(userID, now)
	ctxutil.SetConversation(ctx, userID, sid)
	s.log.Info("session created", "user_id", userID, "persona", personaKey)
	return CreatedSession{
		SessionID: sid,
		UserID:    userID,
		CreatedAt: isotime.Format(now),
		Persona:   personaKey,
	}, nil
}

func (s *sessionService) StartSession(ctx context.Context, userID, personaKey string, metadata map[string]any) (res session.Session, err error) {
	if s.sessions == nil || s.rdb == nil {
		return session.Session{}, unavailable()
	}
	if strings.TrimSpace(userID) == "" {
		return session.Session{}, invalid("user_id is required")
	}
	if strings.TrimSpace(personaKey) == "" {
		personaKey = persona.PreferredKey
	}
	if !s.personas.Has(personaKey) {
		return session.Session{}, apierr.BadRequest(CodeUnknownPersona, fmt.Errorf("Unknown persona: %s", personaKey))
	}
	ctx, span := startSpan(ctx, "session.start")
	defer endSpan(span, &err)
	ctxutil.SetConversation(ctx, userID, "")

	sess, err := s.sessions.Create(ctx, userID, personaKey, metadata)
	if err != nil {
		return session.Session{}, storeFailed("create session", err)
	}
	buf, err := memory.New(s.rdb, memory.ByUser(userID), s.maxContext, s.log)
	if err != nil {
		return session.Session{}, invalid("%v", err)
	}
	if err := buf.SetMetadata(ctx, map[string]any{
		"persona":         personaKey,
		"session_started": isotime.Format(s.now()),
	}); err != nil {
		return session.Session{}, storeFailed("seed metadata", err)
	}
	s.log.Info("session started", "user_id", userID, "persona", personaKey)
	return sess, nil
}

// ListSessions never fails; store errors are logged and yield an empty list.
func (s *sessionService) ListSessions(ctx context.Context) []session.Session {
	if s.sessions == nil {
		return []session.Session{}
	}
	out, err := s.sessions.ListDetailed(ctx)
	if err != nil {
		s.log.Error("list sessions failed", "error", err)
		return []session.Session{}
	}
	if out == nil {
		out = []session.Session{}
	}
	return out
}

func (s *sessionService) ActiveUsers(ctx context.Context) ([]string, error) {
	if s.sessions == nil {
		return nil, unavailable()
	}
	ids, err := s.sessions.ListActiveUserIDs(ctx)
	if err != nil {
		return nil, storeFailed("list active users", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *sessionService) CountSessions(ctx context.Context) (int, error) {
	if s.sessions == nil {
		return 0, ErrUnavailable
	}
	ids, err := s.sessions.ListActiveUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
