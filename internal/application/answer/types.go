package answer

import (
	"time"

	"recall-api/internal/domain/entity"
)

// 上下文来源路径
const (
	PathDocumentRef = "document_ref"
	PathFuzzy       = "fuzzy"
	PathHybrid      = "hybrid"
	PathNone        = "none"
)

// Request 一次提问
type Request struct {
	Query          string
	SessionID      string
	History        []entity.Turn
	PreferredModel string
	Debug          bool
}

// Source 回答引用的来源
type Source struct {
	Title   string            `json:"title"`
	Type    entity.SourceKind `json:"type"`
	Date    time.Time         `json:"date"`
	Snippet string            `json:"snippet"`
	Speaker string            `json:"speaker,omitempty"`
	Score   float64           `json:"score"`
}

// DebugInfo 编排过程信息，仅在请求 debug 时返回
type DebugInfo struct {
	Strategy         entity.Strategy      `json:"strategy"`
	Rule             string               `json:"rule,omitempty"`
	Slots            entity.IntentSlots   `json:"slots"`
	ContextPath      string               `json:"context_path"`
	ChunkCount       int                  `json:"chunk_count"`
	QualityScore     float64              `json:"quality_score"`
	UsedFallback     bool                 `json:"used_fallback"`
	UsedFullContent  bool                 `json:"used_full_content,omitempty"`
	FuzzyMatches     int                  `json:"fuzzy_matches"`
	MatchedDocuments []string             `json:"matched_documents,omitempty"`
	Insights         []string             `json:"insights,omitempty"`
	RelatedDocuments []entity.DocumentRef `json:"related_documents,omitempty"`
	OriginalQuestion string               `json:"original_question,omitempty"`
	SearchAttempts   int                  `json:"search_attempts"`
	Reminded         bool                 `json:"reminded"`
	DegradedSteps    map[string]string    `json:"degraded_steps,omitempty"`
	ElapsedMillis    int64                `json:"elapsed_ms"`
}

// Response 完整回答
type Response struct {
	Answer     string     `json:"answer"`
	Sources    []Source   `json:"sources"`
	ModelUsed  string     `json:"model_used"`
	TokensUsed int        `json:"tokens_used,omitempty"`
	Debug      *DebugInfo `json:"debug_info,omitempty"`
}

// Event 流式输出事件；最后一个事件 Done 为 true
type Event struct {
	Text      string `json:"text,omitempty"`
	Done      bool   `json:"done,omitempty"`
	ModelUsed string `json:"model_used,omitempty"`
}
