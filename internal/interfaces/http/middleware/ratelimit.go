package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"recall-api/internal/infrastructure/persistence/redis"
	"recall-api/pkg/logger"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond int
	// Burst 大于 RequestsPerSecond 时作为窗口上限
	Burst int
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// RateLimit 按调用方与路由的滑动窗口限流
// 调用方优先取令牌中的 client/subject，否则使用客户端 IP。
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limit := cfg.RequestsPerSecond
	if limit <= 0 {
		limit = 100
	}
	if cfg.Burst > limit {
		limit = cfg.Burst
	}
	const window = time.Second

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := redis.BuildRateLimitKey(callerOf(c), route)

		allowed, err := limiter.Allow(ctx, key, limit, window)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(ctx, "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     http.StatusTooManyRequests,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}
		if remaining, err := limiter.Remaining(ctx, key, limit, window); err == nil {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}

		c.Next()
	}
}

func callerOf(c *gin.Context) string {
	if client := c.GetString(ContextClient); client != "" {
		return client
	}
	if subject := c.GetString(ContextSubject); subject != "" {
		return subject
	}
	return c.ClientIP()
}
