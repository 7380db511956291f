package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/carelink/pkg/logger"
)

// Logger returns a middleware that logs HTTP requests. Bodies are never
// logged; registration payloads carry passwords.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		zl := log.ZL.With().
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Logger()

		switch {
		case status >= 500:
			ev := zl.Error()
			if last := c.Errors.Last(); last != nil {
				ev = ev.Err(last.Err)
			}
			ev.Msg("Server error")
		case status >= 400:
			zl.Warn().Msg("Client error")
		default:
			zl.Info().Msg("Request processed")
		}
	}
}
