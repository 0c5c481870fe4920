package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/pkg/logger"
)

// RequestLogger 记录每个 HTTP 请求的访问日志，包括状态码与耗时。
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}).WithPayload(map[string]interface{}{
			"status":     c.Writer.Status(),
			"durationMs": time.Since(start).Milliseconds(),
		}).Info("HTTP request handled")
	}
}
