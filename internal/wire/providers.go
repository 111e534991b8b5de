package wire

import (
	"context"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"recall-api/internal/application/answer"
	"recall-api/internal/application/chunking"
	"recall-api/internal/application/fuzzy"
	"recall-api/internal/application/ingestion"
	"recall-api/internal/application/memory"
	"recall-api/internal/application/reasoning"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/application/routing"
	"recall-api/internal/config"
	infraembedding "recall-api/internal/infrastructure/embedding"
	"recall-api/internal/infrastructure/llm"
	"recall-api/internal/infrastructure/messaging"
	"recall-api/internal/infrastructure/persistence/milvus"
	"recall-api/internal/infrastructure/persistence/postgres"
	"recall-api/internal/infrastructure/persistence/redis"
	"recall-api/internal/interfaces/http/handler"
	"recall-api/internal/interfaces/http/middleware"
	"recall-api/internal/interfaces/http/router"
	"recall-api/internal/workflow/chain"
	"recall-api/pkg/logger"
)

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMilvusClientOptional Milvus 未启用或不可达时返回 nil，向量检索降级为纯词法
func ProvideMilvusClientOptional(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	if !cfg.Vector.Milvus.Enabled {
		return nil, func() {}, nil
	}
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus, cfg.Embedding.Dimension)
	if err != nil {
		logger.Warn(ctx, "milvus not available, vector features disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideVectorStoreOptional 集合准备失败同样视为未启用
func ProvideVectorStoreOptional(ctx context.Context, client *milvus.Client) retrieval.VectorStore {
	if client == nil {
		return nil
	}
	store := milvus.NewStore(client)
	if err := store.EnsureCollections(ctx); err != nil {
		logger.Warn(ctx, "milvus collections not ready, vector features disabled", "error", err.Error())
		return nil
	}
	return store
}

// ProvideDenseEmbedderOptional 稠密向量模型不可用时返回 nil
func ProvideDenseEmbedderOptional(ctx context.Context, cfg *config.Config) einoembedding.Embedder {
	embedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, vector features disabled", "error", err.Error())
		return nil
	}
	return embedder
}

// ProvideTokenEmbedderOptional 未配置词元级向量服务时返回 nil 接口
func ProvideTokenEmbedderOptional(cfg *config.Config) infraembedding.TokenEmbedder {
	client := infraembedding.NewTokenClient(&cfg.Embedding.Token)
	if client == nil {
		return nil
	}
	return client
}

func ProvideQueryCache(cache *redis.VectorCache) infraembedding.QueryCache {
	return cache
}

// ProvideEmbedder 稠密模型缺失时整体返回 nil，检索与摄取跳过向量步骤
func ProvideEmbedder(cfg *config.Config, dense einoembedding.Embedder, token infraembedding.TokenEmbedder, cache infraembedding.QueryCache) retrieval.Embedder {
	if dense == nil {
		return nil
	}
	return infraembedding.NewGateway(dense, token, cache, infraembedding.GatewayOptions{
		Model:     cfg.Embedding.Model,
		BatchSize: cfg.Embedding.BatchSize,
		CacheTTL:  cfg.Embedding.CacheTTL,
	})
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	return messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ConsumerName 消费者组内的实例名
type ConsumerName string

// ProvideIngestConsumer 摄取任务消费者
func ProvideIngestConsumer(redisClient *redis.Client, cfg *config.Config, name ConsumerName) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	return messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamIngestDocuments,
		Group:         messaging.ConsumerGroupIngestWorker,
		ConsumerName:  string(name),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}

func ProvideRetrievalEngine(cfg *config.Config, embedder retrieval.Embedder, vector retrieval.VectorStore, chunks *postgres.ChunkRepository, docs *postgres.DocumentRepository) *retrieval.Engine {
	rc := cfg.Retrieval
	var weights retrieval.Weights
	if rc.DenseWeight > 0 || rc.LexicalWeight > 0 {
		weights = retrieval.DefaultWeights()
		weights.Dense = rc.DenseWeight
		weights.Lexical = rc.LexicalWeight
		if rc.LexicalRankScale > 0 {
			weights.LexicalRankScale = rc.LexicalRankScale
		}
		if rc.RerankFusionWeight > 0 || rc.RerankMaxSimWeight > 0 {
			weights.RerankFusion = rc.RerankFusionWeight
			weights.RerankMaxSim = rc.RerankMaxSimWeight
		}
	}
	return retrieval.NewEngine(embedder, vector, chunks, docs, retrieval.Options{
		Weights:             weights,
		CandidateMultiplier: rc.CandidateMultiplier,
		RerankMinCandidates: rc.RerankMinCandidates,
		DefaultTopK:         rc.DefaultTopK,
		MaxTopK:             rc.MaxTopK,
		BranchTimeout:       cfg.Database.Postgres.QueryTimeout,
	})
}

func ProvideIndexer(tx *postgres.TxManager, docs *postgres.DocumentRepository, chunks *postgres.ChunkRepository, vector retrieval.VectorStore) *retrieval.Indexer {
	return retrieval.NewIndexer(tx, docs, chunks, vector)
}

func ProvideChunker(cfg *config.Config) *chunking.Chunker {
	c := cfg.Chunking
	return chunking.New(chunking.Config{
		TopicWindow:        c.TopicWindow,
		TopicSegments:      c.TopicSegments,
		DetailTargetTokens: c.DetailTargetTokens,
		DetailMaxTokens:    c.DetailMaxTokens,
		OverlapTokens:      c.OverlapTokens,
	})
}

func ProvideSummarizer(factory *llm.EinoFactory) ingestion.Summarizer {
	return chain.NewSummaryChain(factory)
}

// ProvideIngestionService 摄取服务，cleanup 释放向量化协程池
func ProvideIngestionService(
	cfg *config.Config,
	jobs *postgres.JobRepository,
	producer *messaging.Producer,
	chunker *chunking.Chunker,
	embedder retrieval.Embedder,
	indexer *retrieval.Indexer,
	summarizer ingestion.Summarizer,
) (*ingestion.Service, func(), error) {
	svc, err := ingestion.NewService(jobs, producer, chunker, embedder, indexer, summarizer, ingestion.Options{
		EmbedBatchSize:       cfg.Embedding.BatchSize,
		TokenEmbeddingChunks: cfg.Ingestion.MaxTokenEmbeddedChunks,
		SummaryMinRunes:      cfg.Ingestion.SummaryMinChars,
		SummaryModel:         cfg.LLM.Tiers.Default,
		WorkerPoolSize:       cfg.Embedding.Workers,
		EmbedTimeout:         cfg.Embedding.Timeout,
		SummaryTimeout:       cfg.Ingestion.JobTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, svc.Close, nil
}

func ProvideAliasTable(cfg *config.Config) (*fuzzy.AliasTable, error) {
	return fuzzy.LoadAliases(cfg.Fuzzy.AliasFile)
}

func ProvideMatcher(cfg *config.Config, docs *postgres.DocumentRepository, chunks *postgres.ChunkRepository, aliases *fuzzy.AliasTable) *fuzzy.Matcher {
	return fuzzy.NewMatcher(docs, chunks, aliases, fuzzy.Options{
		Threshold:      cfg.Fuzzy.Threshold,
		CandidateLimit: cfg.Fuzzy.CandidateLimit,
	})
}

func ProvideQueryRouter(cfg *config.Config, docs *postgres.DocumentRepository, chunks *postgres.ChunkRepository) *routing.Router {
	rc := cfg.Routing
	return routing.NewRouter(
		routing.DefaultRules(rc.MediaWords),
		docs,
		chunks,
		routing.NewFullDocumentDetector(rc.FullDocumentIndicators),
		routing.Options{
			DocumentLookupLimit: rc.DocumentLookupLimit,
			SpeakerChunkLimit:   rc.SpeakerChunkLimit,
			TemporalChunkLimit:  rc.TemporalChunkLimit,
		},
	)
}

func ProvideReasoner(cfg *config.Config, docs *postgres.DocumentRepository, chunks *postgres.ChunkRepository) *reasoning.Reasoner {
	return reasoning.NewReasoner(docs, chunks, reasoning.Options{
		MaxRelated:     cfg.Reasoning.MaxRelated,
		KnownEntities:  cfg.Reasoning.KnownEntities,
		ChunkScanLimit: cfg.Reasoning.ChunkScanLimit,
	})
}

func ProvideMemory(cfg *config.Config, store *redis.SessionStore) *memory.Memory {
	return memory.New(store, memory.Options{
		TTL:                 cfg.Session.TTL,
		ReminderMinAttempts: cfg.Answer.ReminderMinAttempts,
		ReminderMaxOverlap:  cfg.Answer.ReminderMaxOverlap,
	})
}

// ProvideOrchestrator 跨文档推理未启用时不注入洞察分支
func ProvideOrchestrator(
	cfg *config.Config,
	matcher *fuzzy.Matcher,
	chunks *postgres.ChunkRepository,
	queryRouter *routing.Router,
	engine *retrieval.Engine,
	reasoner *reasoning.Reasoner,
	mem *memory.Memory,
	factory *llm.EinoFactory,
) *answer.Orchestrator {
	deps := answer.Deps{
		Fuzzy:     matcher,
		Chunks:    chunks,
		Router:    queryRouter,
		Search:    engine,
		Memory:    mem,
		Generator: chain.NewAnswerChain(factory),
		Judge:     chain.NewJudgeChain(factory),
	}
	if cfg.Reasoning.Enabled {
		deps.Insights = reasoner
	}

	ac := cfg.Answer
	return answer.NewOrchestrator(deps, answer.Options{
		QualityThreshold:   ac.QualityThreshold,
		NeutralQuality:     ac.NeutralQuality,
		ContextChunks:      ac.ContextChunks,
		LargeContextTokens: ac.LargeContextToken,
		BranchTimeout:      ac.BranchTimeout,
		GenerateTimeout:    ac.GenerateTimeout,
		JudgeTimeout:       ac.JudgeTimeout,
		Tiers: answer.ModelTiers{
			Default:       cfg.LLM.Tiers.Default,
			LargeContext:  cfg.LLM.Tiers.LargeContext,
			DeepReasoning: cfg.LLM.Tiers.DeepReasoning,
		},
		JudgeModel: cfg.LLM.Judge,
	})
}

// ProvideHealthHandler Postgres 与 Redis 为必需依赖，Milvus 为可选
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rds *redis.Client, mv *milvus.Client) *handler.HealthHandler {
	required := map[string]handler.HealthChecker{
		"postgres": pg,
		"redis":    rds,
	}
	optional := map[string]handler.HealthChecker{"milvus": nil}
	if mv != nil {
		optional["milvus"] = mv
	}
	return handler.NewHealthHandler(cfg.App.Version, required, optional)
}

func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	return redis.NewRateLimiter(client)
}

func ProvideHandlers(
	orchestrator *answer.Orchestrator,
	factory *llm.EinoFactory,
	engine *retrieval.Engine,
	ingest *ingestion.Service,
	jobs *postgres.JobRepository,
	docs *postgres.DocumentRepository,
	indexer *retrieval.Indexer,
	reasoner *reasoning.Reasoner,
	health *handler.HealthHandler,
) *router.Handlers {
	return &router.Handlers{
		Chat:     handler.NewChatHandler(orchestrator, factory),
		Search:   handler.NewSearchHandler(engine),
		Ingest:   handler.NewIngestHandler(ingest),
		Jobs:     handler.NewJobHandler(jobs),
		Document: handler.NewDocumentHandler(docs, indexer, engine, reasoner),
		Health:   health,
	}
}
