package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"payroute.backend/pkg/logger"
)

// LoggerMiddleware writes one structured access log line per request.
// Webhook bodies and headers are never logged here.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		ctx := c.Request.Context()
		logger.LogRequest(ctx, c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
		if len(c.Errors) > 0 {
			logger.Warn(ctx, "Request completed with errors",
				zap.String("route", c.FullPath()),
				zap.String("errors", c.Errors.String()),
			)
		}
	}
}
