package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/nono-backend/internal/http/response"
	"github.com/yungbote/nono-backend/internal/platform/ctxutil"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

// Recover turns a handler panic into a 500 envelope and logs the stack.
func Recover(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			fields := []any{"panic", fmt.Sprint(rec), "stack", string(debug.Stack())}
			if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
				fields = append(fields, "request_id", td.RequestID)
			}
			if log != nil {
				log.Error("panic recovered", fields...)
			}
			if !c.Writer.Written() {
				response.RespondError(c, http.StatusInternalServerError, "internal", errors.New("internal server error"))
			}
			c.Abort()
		}()
		c.Next()
	}
}
