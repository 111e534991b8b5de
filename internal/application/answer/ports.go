package answer

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"recall-api/internal/application/fuzzy"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/application/routing"
	"recall-api/internal/domain/entity"
	wfmodel "recall-api/internal/workflow/model"
)

// FuzzySearcher 模糊文档匹配
type FuzzySearcher interface {
	FuzzySearchDocuments(ctx context.Context, query string, threshold float64) ([]fuzzy.ScoredDocument, error)
}

// ChunkLister 按文档列出片段
type ChunkLister interface {
	ListByDocument(ctx context.Context, documentID string, tiers []entity.Tier, limit int) ([]*entity.Chunk, error)
}

// QueryRouter 意图路由与结构化检索
type QueryRouter interface {
	Route(ctx context.Context, query string, history []entity.Turn) (*routing.Outcome, error)
}

// HybridSearcher 混合检索
type HybridSearcher interface {
	Search(ctx context.Context, in retrieval.SearchInput) (*retrieval.SearchOutput, error)
}

// InsightFinder 跨文档推理
type InsightFinder interface {
	FindInsights(ctx context.Context, query string, primary []*entity.RetrievalResult, history []entity.Turn) (*entity.CrossContextInsight, error)
}

// Generator 文本生成
type Generator interface {
	Invoke(ctx context.Context, in *wfmodel.AnswerInput) (*schema.Message, error)
	// Stream 调用方负责 Close()
	Stream(ctx context.Context, in *wfmodel.AnswerInput) (*schema.StreamReader[*schema.Message], error)
}

// Judge 回答质量评审
type Judge interface {
	Score(ctx context.Context, in *wfmodel.JudgeInput) (float64, error)
}
