// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recall-api/internal/config"
	"recall-api/internal/interfaces/http/handler"
	"recall-api/internal/interfaces/http/middleware"
	"recall-api/pkg/utils"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Chat     *handler.ChatHandler
	Search   *handler.SearchHandler
	Ingest   *handler.IngestHandler
	Jobs     *handler.JobHandler
	Document *handler.DocumentHandler
	Health   *handler.HealthHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers *Handlers
	limiter  middleware.RateLimiter
}

// New 创建新的路由器；limiter 为 nil 时不限流
func New(cfg *config.Config, handlers *Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name, middleware.DefaultSkipLogPaths...))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(r.cfg.Observability.Metrics.Path))
	}

	r.engine.Use(middleware.AccessLog(middleware.DefaultSkipLogPaths...))
}

func (r *Router) setupRoutes() {
	h := r.handlers

	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	jwtCfg := r.cfg.Security.JWT
	v1 := r.engine.Group("/api/v1")
	v1.Use(middleware.Auth(middleware.AuthConfig{
		Enabled:   jwtCfg.Enabled,
		Secret:    jwtCfg.Secret,
		Issuer:    jwtCfg.Issuer,
		SkipPaths: middleware.DefaultSkipPaths,
	}))
	rl := r.cfg.Security.RateLimit
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           rl.Enabled,
		RequestsPerSecond: rl.RequestsPerSecond,
		Burst:             rl.Burst,
	}, r.limiter))

	RegisterV1Routes(v1, h, int64(r.cfg.Ingestion.MaxContentBytes))
}

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers, maxIngestBytes int64) {
	read := middleware.RequireScope(utils.ScopeRead)
	write := middleware.RequireScope(utils.ScopeIngest)

	// 问答
	chat := v1.Group("/chat", read)
	{
		chat.POST("", h.Chat.Chat)
		chat.POST("/stream", h.Chat.ChatStream)
		chat.GET("/models", h.Chat.Models)
	}

	// 检索
	search := v1.Group("/search", read)
	{
		search.GET("", h.Search.Search)
		search.GET("/speaker/:name", h.Search.SearchBySpeaker)
		search.GET("/date-range", h.Search.SearchByDateRange)
		search.GET("/recent", h.Search.SearchRecent)
		search.GET("/today", h.Search.SearchToday)
		search.GET("/quick/:query", h.Search.QuickSearch)
		search.GET("/similar/:did", h.Document.SimilarDocuments)
	}

	// 摄取
	ingest := v1.Group("/ingest")
	{
		submit := ingest.Group("", write, middleware.BodyLimit(maxIngestBytes))
		submit.POST("/text", h.Ingest.SubmitText)
		submit.POST("/transcript", h.Ingest.SubmitTranscript)
		submit.POST("/quick", h.Ingest.SubmitQuick)

		ingest.GET("/jobs", read, h.Jobs.ListJobs)
		ingest.GET("/jobs/:jid", read, h.Jobs.GetJob)
	}

	// 文档目录
	documents := v1.Group("/documents")
	{
		documents.GET("", read, h.Document.ListDocuments)
		documents.POST("/relationships", read, h.Document.Relationships)
		documents.GET("/:did", read, h.Document.GetDocument)
		documents.GET("/:did/similar", read, h.Document.SimilarDocuments)
		documents.DELETE("/:did", write, h.Document.DeleteDocument)
	}
}
