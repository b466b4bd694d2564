package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/nono-backend/internal/http/response"
	"github.com/yungbote/nono-backend/internal/platform/isotime"
	"github.com/yungbote/nono-backend/internal/platform/logger"
	"github.com/yungbote/nono-backend/internal/services"
)

type ChatHandler struct {
	chat services.ChatService
	log  *logger.Logger
}

func NewChatHandler(log *logger.Logger, chat services.ChatService) *ChatHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ChatHandler{chat: chat, log: log.With("handler", "ChatHandler")}
}

type chatReq struct {
	SessionID   string `json:"session_id" binding:"required"`
	UserMessage string `json:"user_message" binding:"required"`
	PersonaName string `json:"persona_name"`
}

func (r chatReq) turn() services.TurnRequest {
	return services.TurnRequest{SessionID: r.SessionID, Message: r.UserMessage, Persona: r.PersonaName}
}

// POST /api/chat
// POST /chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeInvalidRequest, err)
		return
	}
	res, err := h.chat.Chat(c.Request.Context(), req.turn())
	if err != nil {
		response.RespondServiceError(c, err, services.CodeGenerationFailed)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/chat/stream
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeInvalidRequest, err)
		return
	}
	ctx := c.Request.Context()
	ts, err := h.chat.ChatStream(ctx, req.turn())
	if err != nil {
		response.RespondServiceError(c, err, services.CodeGenerationFailed)
		return
	}
	defer ts.Close()

	w := c.Writer
	response.PrepareSSE(w)
	w.WriteHeader(http.StatusOK)

	for ts.Next() {
		if err := response.WriteSSEJSON(w, "chunk", gin.H{"content": ts.Text()}); err != nil {
			h.log.Debug("stream client went away", "session_id", req.SessionID, "error", err)
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	reply, err := ts.Complete(ctx)
	if err != nil {
		_ = response.WriteSSEJSON(w, "error", gin.H{"message": err.Error()})
		return
	}
	_ = response.WriteSSEJSON(w, "complete", gin.H{
		"response":   reply,
		"session_id": req.SessionID,
		"timestamp":  isotime.Format(time.Now()),
	})
}
