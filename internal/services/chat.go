package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/nono-backend/internal/llm"
	"github.com/yungbote/nono-backend/internal/memory"
	"github.com/yungbote/nono-backend/internal/observability"
	"github.com/yungbote/nono-backend/internal/persona"
	"github.com/yungbote/nono-backend/internal/platform/ctxutil"
	"github.com/yungbote/nono-backend/internal/platform/isotime"
	"github.com/yungbote/nono-backend/internal/platform/logger"
	"github.com/yungbote/nono-backend/internal/session"
)

const (
	// DefaultChatPersona is used by session-addressed turns that name no persona.
	DefaultChatPersona = "default"

	FallbackSystemPrompt = "You are a helpful assistant."
)

const (
	ChannelHTTP   = "http"
	ChannelStream = "stream"
	ChannelWS     = "ws"
)

type TurnRequest struct {
	SessionID string
	Message   string
	Persona   string
}

type TurnResult struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

// History is the stored transcript of one conversation. SessionID is nil when
// the user-id buffer was read.
type History struct {
	UserID       string           `json:"user_id"`
	SessionID    *string          `json:"session_id"`
	MessageCount int              `json:"message_count"`
	Messages     []memory.Message `json:"messages"`
	Metadata     map[string]any   `json:"metadata"`
}

type ChatService interface {
	// Chat runs one synchronous turn against the session-id buffer.
	Chat(ctx context.Context, req TurnRequest) (TurnResult, error)
	// ChatStream starts the same turn but hands back the fragment stream.
	ChatStream(ctx context.Context, req TurnRequest) (*TurnStream, error)
	// StreamUserTurn starts a streamed turn against the user-id buffer using
	// the persona of the user's live session. ErrSessionNotFound when there is
	// none.
	StreamUserTurn(ctx context.Context, userID, text string) (*TurnStream, error)
	History(ctx context.Context, userID, sessionID string) (History, error)
	// Clear drops the messages of one conversation. Without a session id the
	// user-id buffer is cleared and the user's session record deleted.
	Clear(ctx context.Context, userID, sessionID string) error
}

type chatService struct {
	rdb        goredis.Cmdable
	sessions   *session.Registry
	personas   *persona.Registry
	gateway    llm.Gateway
	maxContext int
	metrics    *observability.Metrics
	log        *logger.Logger

	now func() time.Time
}

func NewChatService(
	baseLog *logger.Logger,
	rdb goredis.Cmdable,
	sessions *session.Registry,
	personas *persona.Registry,
	gateway llm.Gateway,
	maxContext int,
	metrics *observability.Metrics,
) ChatService {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &chatService{
		rdb:        rdb,
		sessions:   sessions,
		personas:   personas,
		gateway:    gateway,
		maxContext: maxContext,
		metrics:    metrics,
		log:        baseLog.With("service", "ChatService"),
		now:        time.Now,
	}
}

func (s *chatService) ready() bool {
	return s.rdb != nil && s.sessions != nil && s.personas != nil && s.gateway != nil
}

// turn carries one chat exchange from the stored user message to the stored
// reply.
type turn struct {
	userID    string
	sessionID string
	persona   string
	channel   string
	buf       *memory.Buffer
	req       llm.Request
	start     time.Time
}

// personaLabel keeps metric cardinality bounded by the loaded personas.
func (t *turn) personaLabel(reg *persona.Registry) string {
	if reg.Has(t.persona) {
		return t.persona
	}
	return "fallback"
}

// generation resolves the system prompt and sampling parameters for key,
// falling back to the generic assistant for unknown personas.
func (s *chatService) generation(key string) llm.Request {
	req := llm.Request{
		System:      FallbackSystemPrompt,
		Temperature: persona.DefaultTemperature,
		MaxTokens:   persona.DefaultMaxTokens,
	}
	p, ok := s.personas.Get(key)
	if !ok {
		s.log.Warn("persona not found, using fallback", "persona", key)
		return req
	}
	if strings.TrimSpace(p.SystemPrompt) != "" {
		req.System = p.SystemPrompt
	}
	req.Temperature = p.Temp()
	if p.MaxTokens > 0 {
		req.MaxTokens = p.MaxTokens
	}
	return req
}

// sessionTurn fetches or creates the session behind a session id and builds a
// turn against the session-id buffer.
func (s *chatService) sessionTurn(ctx context.Context, channel string, req TurnRequest) (*turn, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, invalid("session_id is required")
	}
	userID := session.UserIDFromSessionID(sessionID)
	ctxutil.SetConversation(ctx, userID, sessionID)

	_, found, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, storeFailed("get session", err)
	}
	if !found {
		if _, err := s.sessions.Create(ctx, userID, DefaultChatPersona, nil); err != nil {
			return nil, storeFailed("create session", err)
		}
	}

	key := strings.TrimSpace(req.Persona)
	if key == "" {
		key = DefaultChatPersona
	}
	buf, err := memory.New(s.rdb, memory.BySession(sessionID), s.maxContext, s.log)
	if err != nil {
		return nil, invalid("%v", err)
	}
	return &turn{
		userID:    userID,
		sessionID: sessionID,
		persona:   key,
		channel:   channel,
		buf:       buf,
		req:       s.generation(key),
		start:     s.now(),
	}, nil
}

// userTurn builds a turn against the user-id buffer for a user with a live
// session.
func (s *chatService) userTurn(ctx context.Context, userID string) (*turn, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("user_id is required")
	}
	ctxutil.SetConversation(ctx, userID, "")

	sess, found, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, storeFailed("get session", err)
	}
	if !found {
		return nil, ErrSessionNotFound
	}
	key := sess.Persona
	if key == "" {
		key = persona.PreferredKey
	}
	buf, err := memory.New(s.rdb, memory.ByUser(userID), s.maxContext, s.log)
	if err != nil {
		return nil, invalid("%v", err)
	}
	return &turn{
		userID:  userID,
		persona: key,
		channel: ChannelWS,
		buf:     buf,
		req:     s.generation(key),
		start:   s.now(),
	}, nil
}

// begin stores the user message and builds the prompt from the rendered
// context, which already ends with that message.
func (s *chatService) begin(ctx context.Context, t *turn, text string) error {
	if _, err := t.buf.Append(ctx, memory.RoleUser, text, nil); err != nil {
		return storeFailed("append user message", err)
	}
	history, err := t.buf.RenderContext(ctx)
	if err != nil {
		return storeFailed("render context", err)
	}
	t.req.Prompt = history + "\nAssistant:"
	return nil
}

// finish stores the reply and refreshes the session's message count.
func (s *chatService) finish(ctx context.Context, t *turn, reply string) error {
	if _, err := t.buf.Append(ctx, memory.RoleAssistant, reply, nil); err != nil {
		return storeFailed("append assistant message", err)
	}
	n, err := t.buf.Len(ctx)
	if err != nil {
		return storeFailed("count messages", err)
	}
	count := int(n / 2)
	ok, err := s.sessions.Update(ctx, t.userID, session.Patch{MessageCount: &count})
	if err != nil {
		return storeFailed("update session", err)
	}
	if !ok {
		s.log.Debug("session expired during turn", "user_id", t.userID)
	}
	return nil
}

func (s *chatService) record(t *turn, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.IncChatTurn(t.channel, t.personaLabel(s.personas), status)
	if err != nil {
		s.log.Error("chat turn failed",
			"channel", t.channel,
			"user_id", t.userID,
			"persona", t.persona,
			"duration_ms", time.Since(t.start).Milliseconds(),
			"error", err,
		)
		return
	}
	s.log.Debug("chat turn complete",
		"channel", t.channel,
		"user_id", t.userID,
		"persona", t.persona,
		"duration_ms", time.Since(t.start).Milliseconds(),
	)
}

func (s *chatService) Chat(ctx context.Context, req TurnRequest) (res TurnResult, err error) {
	if !s.ready() {
		return TurnResult{}, unavailable()
	}
	ctx, span := startSpan(ctx, "chat.turn", attribute.String("chat.channel", ChannelHTTP))
	defer endSpan(span, &err)

	t, err := s.sessionTurn(ctx, ChannelHTTP, req)
	if err != nil {
		return TurnResult{}, err
	}
	span.SetAttributes(attribute.String("chat.persona", t.persona))
	defer func() { s.record(t, err) }()

	if err := s.begin(ctx, t, req.Message); err != nil {
		return TurnResult{}, err
	}
	reply, genErr := s.gateway.Generate(ctx, t.req)
	if genErr != nil {
		return TurnResult{}, generationFailed(genErr)
	}
	if err := s.finish(ctx, t, reply); err != nil {
		return TurnResult{}, err
	}
	return TurnResult{
		Response:  reply,
		SessionID: t.sessionID,
		Timestamp: isotime.Format(s.now()),
	}, nil
}

func (s *chatService) ChatStream(ctx context.Context, req TurnRequest) (*TurnStream, error) {
	if !s.ready() {
		return nil, unavailable()
	}
	t, err := s.sessionTurn(ctx, ChannelStream, req)
	if err != nil {
		return nil, err
	}
	return s.openStream(ctx, t, req.Message)
}

func (s *chatService) StreamUserTurn(ctx context.Context, userID, text string) (*TurnStream, error) {
	if !s.ready() {
		return nil, unavailable()
	}
	t, err := s.userTurn(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.openStream(ctx, t, text)
}

func (s *chatService) openStream(ctx context.Context, t *turn, text string) (_ *TurnStream, err error) {
	ctx, span := startSpan(ctx, "chat.turn",
		attribute.String("chat.channel", t.channel),
		attribute.String("chat.persona", t.persona),
	)
	defer func() {
		if err != nil {
			s.record(t, err)
			endSpan(span, &err)
		}
	}()

	if err := s.begin(ctx, t, text); err != nil {
		return nil, err
	}
	st, genErr := s.gateway.GenerateStream(ctx, t.req)
	if genErr != nil {
		return nil, generationFailed(genErr)
	}
	return &TurnStream{svc: s, turn: t, stream: st, span: span}, nil
}

func (s *chatService) bufferFor(userID, sessionID string) (*memory.Buffer, error) {
	addr := memory.ByUser(userID)
	if sessionID != "" {
		addr = memory.BySession(sessionID)
	}
	buf, err := memory.New(s.rdb, addr, s.maxContext, s.log)
	if err != nil {
		if errors.Is(err, memory.ErrInvalidAddress) {
			return nil, invalid("%v", err)
		}
		return nil, err
	}
	return buf, nil
}

func (s *chatService) History(ctx context.Context, userID, sessionID string) (History, error) {
	if s.rdb == nil {
		return History{}, unavailable()
	}
	ctxutil.SetConversation(ctx, userID, sessionID)
	buf, err := s.bufferFor(userID, sessionID)
	if err != nil {
		return History{}, err
	}
	msgs, err := buf.Recent(ctx, 0)
	if err != nil {
		return History{}, storeFailed("read history", err)
	}
	meta, err := buf.Metadata(ctx)
	if err != nil {
		return History{}, storeFailed("read metadata", err)
	}
	h := History{
		UserID:       userID,
		MessageCount: len(msgs),
		Messages:     msgs,
		Metadata:     meta,
	}
	if sessionID != "" {
		h.SessionID = &sessionID
	}
	return h, nil
}

func (s *chatService) Clear(ctx context.Context, userID, sessionID string) error {
	if s.rdb == nil || s.sessions == nil {
		return unavailable()
	}
	ctxutil.SetConversation(ctx, userID, sessionID)
	buf, err := s.bufferFor(userID, sessionID)
	if err != nil {
		return err
	}
	if err := buf.ClearMessages(ctx); err != nil {
		return storeFailed("clear history", err)
	}
	if sessionID == "" {
		if err := s.sessions.Delete(ctx, userID); err != nil {
			return storeFailed("delete session", err)
		}
	}
	s.log.Info("conversation cleared", "user_id", userID, "session_id", sessionID)
	return nil
}

// ClearedMessage is the human-readable confirmation returned by clear endpoints.
func ClearedMessage(userID string) string {
	return fmt.Sprintf("Session cleared for user %s", userID)
}
