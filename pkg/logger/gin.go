package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-Id"

const ginLoggerKey = "logger"

// Middleware returns a Gin middleware that injects request_id and logs request summaries.
// The request logger is stored on both the Gin context and the request context so
// services deeper in the call chain can log through From(ctx).
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLogger := l.With("request_id", rid)
		c.Set(ginLoggerKey, reqLogger)
		c.Request = c.Request.WithContext(With(c.Request.Context(), reqLogger))

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration_ms", float64(time.Since(start).Milliseconds()),
		}
		// the summary carries caller attrs added by auth
		done := FromGin(c)
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
			done.Error("request", attrs...)
			return
		}
		done.Info("request", attrs...)
	}
}

// FromGin returns the request logger, including any attrs added with Enrich
// after Middleware ran.
func FromGin(c *gin.Context) *slog.Logger {
	if l, ok := c.Request.Context().Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	if v, ok := c.Get(ginLoggerKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
