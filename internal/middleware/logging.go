package middleware

import (
	"log/slog"
	"time"

	"adcert/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestLogger tags each request context with a request id and logs one
// line per completed request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		ctx := logging.WithAttrs(c.Request.Context(), slog.String("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		}
		if userID, ok := c.Get("userID"); ok {
			attrs = append(attrs, slog.Any("user_id", userID))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			logging.Error(ctx, "request failed", attrs...)
		case c.Writer.Status() >= 400:
			logging.Warn(ctx, "request rejected", attrs...)
		default:
			logging.Info(ctx, "request completed", attrs...)
		}
	}
}
