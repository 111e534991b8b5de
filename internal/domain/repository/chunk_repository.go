package repository

import (
	"context"
	"time"

	"recall-api/internal/domain/entity"
)

// ChunkFilter 片段检索的元数据过滤
type ChunkFilter struct {
	DocumentIDs   []string
	Speaker       string
	SourceKind    entity.SourceKind
	Tiers         []entity.Tier
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// IsZero 是否未设置任何过滤
func (f *ChunkFilter) IsZero() bool {
	return f == nil || (len(f.DocumentIDs) == 0 && f.Speaker == "" && f.SourceKind == "" &&
		len(f.Tiers) == 0 && f.CreatedAfter == nil && f.CreatedBefore == nil)
}

// LexicalHit 词法检索命中
type LexicalHit struct {
	ChunkID string
	Rank    float64
}

// RelatedQuery 关联文档查询：说话人命中或正文包含任一子串的片段所属文档
type RelatedQuery struct {
	ExcludeIDs []string
	Speakers   []string
	// Patterns 不区分大小写的子串
	Patterns []string
	Limit    int
}

// RelatedDocument 关联文档及命中片段数
type RelatedDocument struct {
	Document   *entity.Document
	MatchCount int
}

// ChunkRepository 片段仓储接口
type ChunkRepository interface {
	// CreateBatch 批量写入片段
	CreateBatch(ctx context.Context, chunks []*entity.Chunk) error

	// SaveTokenEmbeddings 写入词元级向量
	SaveTokenEmbeddings(ctx context.Context, rows []*entity.ChunkTokenEmbedding) error

	// GetByIDs 批量获取片段
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Chunk, error)

	// ListByDocument 按序号列出文档片段，tiers 为空表示全部
	ListByDocument(ctx context.Context, documentID string, tiers []entity.Tier, limit int) ([]*entity.Chunk, error)

	// GetNeighbors 获取同一文档中相邻序号的细节片段
	GetNeighbors(ctx context.Context, documentID string, ordinal int) (prev, next *entity.Chunk, err error)

	// LexicalSearch 词法相关性检索
	LexicalSearch(ctx context.Context, query string, limit int, filter *ChunkFilter) ([]LexicalHit, error)

	// FindBySpeaker 说话人或正文匹配的片段，最新文档优先
	FindBySpeaker(ctx context.Context, name string, limit int) ([]*entity.Chunk, error)

	// ListDistinctSpeakers 列出出现过的说话人
	ListDistinctSpeakers(ctx context.Context, limit int) ([]string, error)

	// FindCreatedBetween 在时间窗口内创建的文档的片段
	FindCreatedBetween(ctx context.Context, start, end time.Time, perDocument, limit int) ([]*entity.Chunk, error)

	// FindRelatedDocuments 按命中片段数倒序返回关联文档
	FindRelatedDocuments(ctx context.Context, q RelatedQuery) ([]RelatedDocument, error)

	// GetTokenEmbeddings 批量读取词元级向量
	GetTokenEmbeddings(ctx context.Context, chunkIDs []string) (map[string]*entity.TokenEmbeddings, error)

	// DeleteByDocument 删除文档的全部片段及词元向量
	DeleteByDocument(ctx context.Context, documentID string) error
}
