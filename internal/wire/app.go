package wire

import (
	"recall-api/internal/application/answer"
	"recall-api/internal/application/ingestion"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/infrastructure/messaging"
	"recall-api/internal/infrastructure/persistence/postgres"
	"recall-api/internal/infrastructure/persistence/redis"
)

// Worker ingest-worker 依赖容器
type Worker struct {
	Service  *ingestion.Service
	Consumer *messaging.Consumer
}

// Migrator 建表与向量集合准备；Vector 为 nil 表示未启用 Milvus
type Migrator struct {
	Postgres *postgres.Client
	Vector   retrieval.VectorStore
}

// Toolkit recallctl 依赖容器
type Toolkit struct {
	Ingestion *ingestion.Service
	Jobs      *postgres.JobRepository
	Engine    *retrieval.Engine
	Answerer  *answer.Orchestrator
	Cache     *redis.VectorCache
}
