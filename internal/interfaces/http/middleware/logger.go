package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"sepolia-wallet.backend/pkg/logger"
)

// route params worth seeing next to a request: the wallet or the
// transaction/job it was about
var loggedParams = []string{"address", "id"}

// LoggerMiddleware writes one access log line per request. Server errors
// log at error level and client errors at warn.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if query := c.Request.URL.RawQuery; query != "" {
			fields = append(fields, zap.String("query", query))
		}
		for _, name := range loggedParams {
			if v := c.Param(name); v != "" {
				fields = append(fields, zap.String(name, v))
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		// request_id comes from the context set by RequestIDMiddleware
		logger.LogRequest(c.Request.Context(), status, fields...)
	}
}
