package repository

import (
	"context"
	"time"

	"recall-api/internal/domain/entity"
)

// DocumentFilter 文档过滤条件
type DocumentFilter struct {
	SourceKind    entity.SourceKind
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	// Sort 为空时按创建时间倒序
	Sort Sort
}

// DocumentRepository 文档仓储接口
type DocumentRepository interface {
	// Create 创建文档
	Create(ctx context.Context, doc *entity.Document) error

	// GetByID 根据 ID 获取文档，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.Document, error)

	// GetByIDs 批量获取文档
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Document, error)

	// GetByContentHash 根据原文哈希获取文档
	GetByContentHash(ctx context.Context, hash string) (*entity.Document, error)

	// List 分页列出文档（按创建时间倒序）
	List(ctx context.Context, filter *DocumentFilter, pagination Pagination) (*PagedResult[*entity.Document], error)

	// SearchByTerms 标题、摘要或任一片段包含任一词项的文档，按创建时间倒序
	SearchByTerms(ctx context.Context, terms []string, limit int) ([]*entity.Document, error)

	// SearchByTitle 标题包含任一词项的文档，按创建时间倒序
	SearchByTitle(ctx context.Context, terms []string, limit int) ([]*entity.Document, error)

	// ListTitles 列出文档标题（最新优先）
	ListTitles(ctx context.Context, limit int) ([]string, error)

	// ListCreatedSince 指定时间之后创建的文档
	ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]*entity.Document, error)

	// UpdateSummary 更新摘要与摘要向量
	UpdateSummary(ctx context.Context, id, summary string, embedding []float32) error

	// Delete 删除文档
	Delete(ctx context.Context, id string) error

	// ListSpeakers 返回每个文档出现过的说话人
	ListSpeakers(ctx context.Context, documentIDs []string) (map[string][]string, error)
}
