//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"recall-api/internal/config"
	"recall-api/internal/infrastructure/llm"
	"recall-api/internal/infrastructure/persistence/postgres"
	"recall-api/internal/infrastructure/persistence/redis"
	"recall-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 网关
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		PostgresSet,
		RedisSet,
		VectorSet,
		ModelSet,
		ApplicationSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化摄取工作进程
func InitializeWorker(ctx context.Context, cfg *config.Config, name ConsumerName) (*Worker, func(), error) {
	wire.Build(
		PostgresSet,
		RedisSet,
		VectorSet,
		ModelSet,
		IngestionSet,
		ProvideIngestConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeMigrator 仅初始化存储层（用于 migrate）
func InitializeMigrator(ctx context.Context, cfg *config.Config) (*Migrator, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		ProvideMilvusClientOptional,
		ProvideVectorStoreOptional,
		wire.Struct(new(Migrator), "*"),
	)
	return nil, nil, nil
}

// InitializeToolkit 初始化命令行工具
func InitializeToolkit(ctx context.Context, cfg *config.Config) (*Toolkit, func(), error) {
	wire.Build(
		PostgresSet,
		RedisSet,
		VectorSet,
		ModelSet,
		ApplicationSet,
		wire.Struct(new(Toolkit), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewDocumentRepository,
	postgres.NewChunkRepository,
	postgres.NewJobRepository,
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewVectorCache,
	redis.NewSessionStore,
	ProvideQueryCache,
	ProvideMessagingProducer,
)

// VectorSet 可选的向量存储与向量网关
var VectorSet = wire.NewSet(
	ProvideMilvusClientOptional,
	ProvideVectorStoreOptional,
	ProvideDenseEmbedderOptional,
	ProvideTokenEmbedderOptional,
	ProvideEmbedder,
)

// ModelSet LLM 工厂
var ModelSet = wire.NewSet(
	llm.NewEinoFactory,
)

// IngestionSet 摄取流水线
var IngestionSet = wire.NewSet(
	ProvideIndexer,
	ProvideChunker,
	ProvideSummarizer,
	ProvideIngestionService,
)

// ApplicationSet 检索、路由、推理与回答编排
var ApplicationSet = wire.NewSet(
	IngestionSet,
	ProvideRetrievalEngine,
	ProvideAliasTable,
	ProvideMatcher,
	ProvideQueryRouter,
	ProvideReasoner,
	ProvideMemory,
	ProvideOrchestrator,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideRateLimiter,
	ProvideHandlers,
	router.New,
)
