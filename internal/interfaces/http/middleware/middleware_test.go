package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"recall-api/pkg/logger"
	"recall-api/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

func protectedRouter(cfg AuthConfig) *gin.Engine {
	r := gin.New()
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	api := r.Group("/api", Auth(cfg))
	api.GET("/read", RequireScope(utils.ScopeRead), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextClient))
	})
	api.POST("/ingest", RequireScope(utils.ScopeIngest), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return r
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_Disabled(t *testing.T) {
	r := protectedRouter(AuthConfig{Enabled: false})

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/read", "").Code)
	assert.Equal(t, http.StatusAccepted, serve(r, http.MethodPost, "/api/ingest", "").Code)
}

func TestAuth_Enabled(t *testing.T) {
	cfg := AuthConfig{Enabled: true, Secret: testSecret, Issuer: "recall", SkipPaths: DefaultSkipPaths}
	r := protectedRouter(cfg)
	mgr := utils.NewJWTManager(testSecret, "recall")

	readOnly, err := mgr.GenerateToken("alice", "voice-assistant", []string{utils.ScopeRead}, time.Hour)
	require.NoError(t, err)
	expired, err := mgr.GenerateToken("alice", "cli", []string{utils.ScopeRead}, -time.Minute)
	require.NoError(t, err)
	foreign, err := utils.NewJWTManager("other-secret", "recall").GenerateToken("eve", "x", []string{utils.ScopeRead}, time.Hour)
	require.NoError(t, err)

	t.Run("health skipped", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "").Code)
	})

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/read", "").Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/read", nil)
		req.Header.Set("Authorization", "Basic abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/read", readOnly)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "voice-assistant", w.Body.String())
	})

	t.Run("missing scope", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/api/ingest", readOnly).Code)
	})

	t.Run("expired", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/read", expired)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "token expired")
	})

	t.Run("wrong signature", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/read", foreign)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid token")
	})
}

type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
	limit   int
}

func (f *fakeLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	f.limit = limit
	return f.allowed, f.err
}

func (f *fakeLimiter) Remaining(_ context.Context, _ string, limit int, _ time.Duration) (int, error) {
	return limit - 1, nil
}

func limitedRouter(cfg RateLimitConfig, limiter RateLimiter) *gin.Engine {
	r := gin.New()
	r.GET("/api/search", func(c *gin.Context) {
		c.Set(ContextClient, "voice-assistant")
		c.Next()
	}, RateLimit(cfg, limiter), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRateLimit(t *testing.T) {
	cfg := RateLimitConfig{Enabled: true, RequestsPerSecond: 10, Burst: 20}

	t.Run("allowed sets headers", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: true}
		w := serve(limitedRouter(cfg, limiter), http.MethodGet, "/api/search", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "20", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "19", w.Header().Get("X-RateLimit-Remaining"))
		require.Len(t, limiter.keys, 1)
		assert.Contains(t, limiter.keys[0], "voice-assistant")
		assert.Contains(t, limiter.keys[0], "/api/search")
	})

	t.Run("denied", func(t *testing.T) {
		w := serve(limitedRouter(cfg, &fakeLimiter{allowed: false}), http.MethodGet, "/api/search", "")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
	})

	t.Run("limiter failure passes through", func(t *testing.T) {
		w := serve(limitedRouter(cfg, &fakeLimiter{err: errors.New("redis down")}), http.MethodGet, "/api/search", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		limiter := &fakeLimiter{}
		w := serve(limitedRouter(RateLimitConfig{}, limiter), http.MethodGet, "/api/search", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, limiter.keys)
	})
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(RequestIDHeader, header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := call("abc-123")
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", w.Body.String())

	w = call("bad id with spaces")
	assert.NotEqual(t, "bad id with spaces", w.Header().Get(RequestIDHeader))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	w = call("")
	assert.Len(t, w.Body.String(), 36)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.POST("/ingest", BodyLimit(8), func(c *gin.Context) {
		var body map[string]string
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"content":"far too long for the limit"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var gotTraceID any
	r := gin.New()
	r.Use(TraceContext())
	r.GET("/x", func(c *gin.Context) {
		gotTraceID = c.Request.Context().Value(logger.TraceIDKey)
		c.Status(http.StatusNoContent)
	})

	t.Run("with span", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "http")
		defer span.End()
		req := httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(ctx)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		want := span.SpanContext().TraceID().String()
		assert.Equal(t, want, w.Header().Get("X-Trace-ID"))
		assert.Equal(t, want, gotTraceID)
	})

	t.Run("without span", func(t *testing.T) {
		gotTraceID = nil
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Empty(t, w.Header().Get("X-Trace-ID"))
		assert.Nil(t, gotTraceID)
	})
}
