package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"recall-api/pkg/logger"
)

// AccessLog 请求日志中间件
func AccessLog(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
			"client", c.GetString(ContextClient),
			"body_size", c.Writer.Size(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn(c.Request.Context(), "api request", fields...)
			return
		}
		logger.Info(c.Request.Context(), "api request", fields...)
	}
}

// BodyLimit 限制请求体大小，maxBytes <= 0 表示不限制
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// DefaultSkipLogPaths 默认不记录请求日志的路径
var DefaultSkipLogPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
