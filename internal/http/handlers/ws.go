package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yungbote/nono-backend/internal/observability"
	"github.com/yungbote/nono-backend/internal/platform/ctxutil"
	"github.com/yungbote/nono-backend/internal/platform/logger"
	"github.com/yungbote/nono-backend/internal/services"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxFrameSize = 64 << 10
	wsInboxSize    = 8
)

type WSHandler struct {
	chat     services.ChatService
	metrics  *observability.Metrics
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(log *logger.Logger, chat services.ChatService, metrics *observability.Metrics) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WSHandler{
		chat:    chat,
		metrics: metrics,
		log:     log.With("handler", "WSHandler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type wsInbound struct {
	Text string `json:"text"`
}

func chunkFrame(content string) gin.H { return gin.H{"type": "chunk", "content": content} }

func completeFrame(reply string) gin.H { return gin.H{"type": "complete", "response": reply} }

func errorFrame(message string) gin.H { return gin.H{"type": "error", "message": message} }

// GET /ws/chat/:user_id
func (h *WSHandler) Chat(c *gin.Context) {
	if h.chat == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	userID := c.Param("user_id")
	ctxutil.SetConversation(c.Request.Context(), userID, "")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	h.metrics.WSConnected()
	defer h.metrics.WSDisconnected()
	defer conn.Close()
	conn.SetReadLimit(wsMaxFrameSize)

	// The connection context ends when the client goes away, which also
	// cancels any turn still streaming from the backend.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	inbox := make(chan []byte, wsInboxSize)
	go func() {
		defer cancel()
		defer close(inbox)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					h.log.Warn("websocket read failed", "user_id", userID, "error", err)
				}
				return
			}
			select {
			case inbox <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	h.log.Info("websocket connected", "user_id", userID)
	for data := range inbox {
		if err := h.turn(ctx, conn, userID, data); err != nil {
			h.log.Debug("websocket write failed", "user_id", userID, "error", err)
			break
		}
	}
	h.log.Info("websocket disconnected", "user_id", userID)
}

// turn runs one chat turn and reports it in frames. Only a failed write is
// returned; turn failures are sent to the client as error frames.
func (h *WSHandler) turn(ctx context.Context, conn *websocket.Conn, userID string, data []byte) error {
	var in wsInbound
	if err := json.Unmarshal(data, &in); err != nil {
		return h.write(conn, errorFrame("invalid message: "+err.Error()))
	}

	ts, err := h.chat.StreamUserTurn(ctx, userID, in.Text)
	if errors.Is(err, services.ErrSessionNotFound) {
		return h.write(conn, errorFrame("Session not found"))
	}
	if err != nil {
		return h.write(conn, errorFrame(err.Error()))
	}
	defer ts.Close()

	for ts.Next() {
		if err := h.write(conn, chunkFrame(ts.Text())); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	reply, err := ts.Complete(ctx)
	if err != nil {
		return h.write(conn, errorFrame(err.Error()))
	}
	return h.write(conn, completeFrame(reply))
}

func (h *WSHandler) write(conn *websocket.Conn, f gin.H) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(f)
}
