// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"time"

	"recall-api/internal/application/answer"
	"recall-api/internal/application/ingestion"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
)

// Answerer 问答编排
type Answerer interface {
	Ask(ctx context.Context, req answer.Request) (*answer.Response, error)
	Stream(ctx context.Context, req answer.Request, emit func(answer.Event) error) (*answer.Response, error)
	Tiers() answer.ModelTiers
}

// ModelCatalog 实际可用的生成模型
type ModelCatalog interface {
	Served() []string
}

// SearchEngine 检索入口
type SearchEngine interface {
	Search(ctx context.Context, in retrieval.SearchInput) (*retrieval.SearchOutput, error)
	SearchBySpeaker(ctx context.Context, speaker, query string, topK int, rerank bool) (*retrieval.SearchOutput, error)
	SearchByDateRange(ctx context.Context, start, end time.Time, query string, topK int, rerank bool) (*retrieval.SearchOutput, error)
	SimilarDocuments(ctx context.Context, documentID string, topK int) ([]retrieval.SimilarDocument, error)
}

// Ingestor 摄取提交
type Ingestor interface {
	SubmitText(ctx context.Context, in ingestion.TextSubmission) (string, error)
	SubmitTranscript(ctx context.Context, in ingestion.TranscriptSubmission) (string, error)
	SubmitQuick(ctx context.Context, content, source string) (string, error)
}

// JobReader 摄取任务查询
type JobReader interface {
	GetByID(ctx context.Context, id string) (*entity.IngestionJob, error)
	ListRecent(ctx context.Context, status entity.JobStatus, pagination repository.Pagination) (*repository.PagedResult[*entity.IngestionJob], error)
}

// DocumentCatalog 文档目录查询
type DocumentCatalog interface {
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	List(ctx context.Context, filter *repository.DocumentFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Document], error)
	ListSpeakers(ctx context.Context, documentIDs []string) (map[string][]string, error)
}

// DocumentRemover 删除文档及其片段与向量
type DocumentRemover interface {
	Delete(ctx context.Context, documentID string) error
}

// RelationshipFinder 文档关系推导
type RelationshipFinder interface {
	Relationships(ctx context.Context, documentIDs []string) ([]entity.DocumentRelationship, error)
}

// HealthChecker 依赖健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
