package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/llmsim/simulator/internal/logger"
)

const requestIDKey = "request_id"

// RequestID generates and threads a request_id through gin's context and
// response header, adapted from the gateway middleware idiom of stamping an
// 8-character suffix rather than a full UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := "req_" + uuid.NewString()[:8]
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestLogging logs start/end of every request at the access-log level,
// with duration and final status, mirroring the gateway's start/stop pair.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Infow("request completed",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
