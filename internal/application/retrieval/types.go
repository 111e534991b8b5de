package retrieval

import (
	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
)

// SearchInput 混合检索输入。
type SearchInput struct {
	Query  string
	TopK   int
	Rerank bool

	// Filter 为空表示不过滤
	Filter *repository.ChunkFilter
}

// DebugInfo 各阶段耗时与降级原因
type DebugInfo struct {
	LexicalHits   int
	DenseHits     int
	Candidates    int
	Reranked      bool
	StageMillis   map[string]int64
	DegradedSteps map[string]string
}

func (d *DebugInfo) degrade(step string, err error) {
	if d.DegradedSteps == nil {
		d.DegradedSteps = make(map[string]string)
	}
	d.DegradedSteps[step] = err.Error()
}

type SearchOutput struct {
	Results []*entity.RetrievalResult
	Debug   *DebugInfo
}

// SimilarDocument 摘要向量相近的文档
type SimilarDocument struct {
	Document   entity.DocumentRef `json:"document"`
	Similarity float64            `json:"similarity"`
}
