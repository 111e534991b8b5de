// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"recall-api/pkg/utils"
)

// Gin Context 中的调用方信息
const (
	ContextSubject = "subject"
	ContextClient  = "client"
	ContextScopes  = "scopes"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
	// SkipPaths 跳过认证的路径前缀
	SkipPaths []string
	// Enabled 未启用时所有请求视为拥有全部作用域
	Enabled bool
}

// Auth 可选的 Bearer JWT 认证
func Auth(cfg AuthConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Set(ContextScopes, []string{utils.ScopeRead, utils.ScopeIngest})
			c.Next()
		}
	}

	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		for _, path := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "invalid authorization format")
			return
		}

		claims, err := jwtManager.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, utils.ErrExpiredToken) {
				msg = "token expired"
			}
			abortUnauthorized(c, msg)
			return
		}

		c.Set(ContextSubject, claims.Subject)
		c.Set(ContextClient, claims.Client)
		c.Set(ContextScopes, claims.Scopes)
		c.Next()
	}
}

// RequireScope 要求令牌携带指定作用域
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes := c.GetStringSlice(ContextScopes)
		for _, s := range scopes {
			if s == scope {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code":     http.StatusForbidden,
			"message":  "missing scope: " + scope,
			"trace_id": c.GetString("trace_id"),
		})
	}
}

// abortUnauthorized 终止请求并返回 401
func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":     http.StatusUnauthorized,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
