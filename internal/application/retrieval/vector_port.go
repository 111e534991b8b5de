package retrieval

import (
	"context"

	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
)

// VectorStore 定义应用层对“向量存储/检索”的最小依赖（port）。
// 由基础设施层提供具体实现（例如 Milvus）。
type VectorStore interface {
	EnsureCollections(ctx context.Context) error
	InsertChunks(ctx context.Context, rows []*VectorChunk) error
	SearchChunks(ctx context.Context, params *VectorSearchParams) ([]*VectorHit, error)
	DeleteByDocument(ctx context.Context, documentID string) error

	UpsertSummary(ctx context.Context, row *VectorSummary) error
	SearchSummaries(ctx context.Context, vector []float32, topK int, excludeID string) ([]*VectorHit, error)
}

// Embedder 向量网关端口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedTokens 词元级向量，不可用时返回 ErrTokenEmbeddingsUnavailable
	EmbedTokens(ctx context.Context, text string) (*entity.TokenEmbeddings, error)
}

type VectorSearchParams struct {
	QueryVector []float32
	TopK        int
	Filter      *repository.ChunkFilter
}

// VectorHit 最近邻命中，Score 为余弦相似度
type VectorHit struct {
	ChunkID    string
	DocumentID string
	Score      float32
}

type VectorChunk struct {
	ChunkID    string
	DocumentID string
	Tier       string
	Speaker    string
	SourceKind string
	CreatedAt  int64
	Vector     []float32
}

type VectorSummary struct {
	DocumentID string
	SourceKind string
	CreatedAt  int64
	Vector     []float32
}
