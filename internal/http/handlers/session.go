package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/nono-backend/internal/http/response"
	"github.com/yungbote/nono-backend/internal/services"
)

type SessionHandler struct {
	sessions services.SessionService
	chat     services.ChatService
}

func NewSessionHandler(sessions services.SessionService, chat services.ChatService) *SessionHandler {
	return &SessionHandler{sessions: sessions, chat: chat}
}

type createSessionReq struct {
	UserID   string         `json:"user_id" binding:"required"`
	Persona  string         `json:"persona"`
	Metadata map[string]any `json:"metadata"`
}

type sessionInfo struct {
	UserID       string `json:"user_id"`
	Persona      string `json:"persona"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
}

// POST /api/session/create
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeInvalidRequest, err)
		return
	}
	res, err := h.sessions.CreateSession(c.Request.Context(), req.UserID, req.Persona, req.Metadata)
	if err != nil {
		response.RespondServiceError(c, err, services.CodeStoreFailed)
		return
	}
	response.RespondOK(c, res)
}

// POST /session/start
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeInvalidRequest, err)
		return
	}
	sess, err := h.sessions.StartSession(c.Request.Context(), req.UserID, req.Persona, req.Metadata)
	if err != nil {
		response.RespondServiceError(c, err, services.CodeStoreFailed)
		return
	}
	response.RespondOK(c, sessionInfo{
		UserID:       sess.UserID,
		Persona:      sess.Persona,
		MessageCount: sess.MessageCount,
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
	})
}

// GET /session/:user_id/history?session_id=
func (h *SessionHandler) History(c *gin.Context) {
	hist, err := h.chat.History(c.Request.Context(), c.Param("user_id"), strings.TrimSpace(c.Query("session_id")))
	if err != nil {
		response.RespondServiceError(c, err, services.CodeStoreFailed)
		return
	}
	response.RespondOK(c, hist)
}

// DELETE /session/:user_id/clear?session_id=
func (h *SessionHandler) Clear(c *gin.Context) {
	userID := c.Param("user_id")
	if err := h.chat.Clear(c.Request.Context(), userID, strings.TrimSpace(c.Query("session_id"))); err != nil {
		response.RespondServiceError(c, err, services.CodeStoreFailed)
		return
	}
	response.RespondOK(c, gin.H{"status": "success", "message": services.ClearedMessage(userID)})
}

// GET /api/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions := h.sessions.ListSessions(c.Request.Context())
	response.RespondOK(c, gin.H{"sessions": sessions, "count": len(sessions)})
}

// GET /sessions/active
func (h *SessionHandler) ActiveSessions(c *gin.Context) {
	users, err := h.sessions.ActiveUsers(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err, services.CodeStoreFailed)
		return
	}
	response.RespondOK(c, gin.H{"active_users": users, "count": len(users)})
}
