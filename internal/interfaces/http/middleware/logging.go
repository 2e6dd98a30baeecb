// Package middleware provides the cross-cutting gin middleware for the
// MorphoScreen HTTP API.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
)

// RequestIDHeader is the header carrying the request correlation ID.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID echoes an incoming correlation ID or generates one, and makes
// it available to downstream handlers and the access log.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger emits one structured access-log entry per request.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
			logging.String("request_id", c.GetString(requestIDKey)),
		}
		if query != "" {
			fields = append(fields, logging.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logging.String("errors", c.Errors.String()))
			logger.Error("http request", fields...)
			return
		}
		if c.Writer.Status() >= 500 {
			logger.Error("http request", fields...)
			return
		}
		logger.Info("http request", fields...)
	}
}

// Recovery converts panics into 500 responses without killing the server.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered",
			logging.String("path", c.Request.URL.Path),
			logging.String("request_id", c.GetString(requestIDKey)),
			logging.Any("panic", recovered),
		)
		c.AbortWithStatusJSON(500, gin.H{
			"code":    "COMMON_001",
			"message": "internal server error",
		})
	})
}
