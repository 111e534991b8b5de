package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
)

// DocumentRepository 文档仓储实现
type DocumentRepository struct {
	client *Client
}

var _ repository.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository 创建文档仓储
func NewDocumentRepository(client *Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

// Create 创建文档
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(doc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取文档
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByID")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var doc entity.Document
	if err := db.First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// GetByIDs 批量获取文档
func (r *DocumentRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByIDs")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var docs []*entity.Document
	if err := db.Where("id IN ?", ids).Find(&docs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	return docs, nil
}

// GetByContentHash 根据原文哈希获取最早的同内容文档
func (r *DocumentRepository) GetByContentHash(ctx context.Context, hash string) (*entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByContentHash")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var doc entity.Document
	if err := db.Where("content_hash = ?", hash).Order("created_at ASC").First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document by hash: %w", err)
	}
	return &doc, nil
}

// List 分页列出文档（按创建时间倒序）
func (r *DocumentRepository) List(ctx context.Context, filter *repository.DocumentFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Document], error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Document{})
	if filter != nil {
		if filter.SourceKind != "" {
			query = query.Where("source_kind = ?", filter.SourceKind)
		}
		if filter.CreatedAfter != nil {
			query = query.Where("created_at >= ?", *filter.CreatedAfter)
		}
		if filter.CreatedBefore != nil {
			query = query.Where("created_at <= ?", *filter.CreatedBefore)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	sort := repository.DefaultDocumentSort
	if filter != nil && filter.Sort.Field != "" {
		sort = filter.Sort
	}

	var docs []*entity.Document
	if err := query.Omit("summary_embedding").
		Order(sort.Clause()).
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&docs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return repository.NewPagedResult(docs, total, pagination), nil
}

// SearchByTerms 标题、摘要或任一片段包含任一词项的文档
func (r *DocumentRepository) SearchByTerms(ctx context.Context, terms []string, limit int) ([]*entity.Document, error) {
	patterns := likePatterns(terms)
	if len(patterns) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.SearchByTerms")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var docs []*entity.Document
	err := db.Omit("summary_embedding").
		Where(`LOWER(title) LIKE ANY(?) OR LOWER(COALESCE(summary, '')) LIKE ANY(?) OR EXISTS (
			SELECT 1 FROM chunks c WHERE c.document_id = documents.id AND LOWER(c.content) LIKE ANY(?)
		)`, pq.StringArray(patterns), pq.StringArray(patterns), pq.StringArray(patterns)).
		Order("created_at DESC").
		Limit(positive(limit, 10)).
		Find(&docs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return docs, nil
}

// SearchByTitle 标题包含任一词项的文档
func (r *DocumentRepository) SearchByTitle(ctx context.Context, terms []string, limit int) ([]*entity.Document, error) {
	patterns := likePatterns(terms)
	if len(patterns) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.SearchByTitle")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var docs []*entity.Document
	err := db.Omit("summary_embedding").
		Where("LOWER(title) LIKE ANY(?)", pq.StringArray(patterns)).
		Order("created_at DESC").
		Limit(positive(limit, 5)).
		Find(&docs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search titles: %w", err)
	}
	return docs, nil
}

// ListTitles 列出去重后的标题，最新优先
func (r *DocumentRepository) ListTitles(ctx context.Context, limit int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.ListTitles")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var titles []string
	err := db.Model(&entity.Document{}).
		Select("title").
		Where("title <> ''").
		Group("title").
		Order("MAX(created_at) DESC").
		Limit(positive(limit, 100)).
		Pluck("title", &titles).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list titles: %w", err)
	}
	return titles, nil
}

// ListCreatedSince 指定时间之后创建的文档
func (r *DocumentRepository) ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]*entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.ListCreatedSince")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var docs []*entity.Document
	if err := db.Omit("summary_embedding").
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Limit(positive(limit, 50)).
		Find(&docs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list recent documents: %w", err)
	}
	return docs, nil
}

// UpdateSummary 更新摘要与摘要向量
func (r *DocumentRepository) UpdateSummary(ctx context.Context, id, summary string, embedding []float32) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.UpdateSummary")
	defer span.End()

	db := getDB(ctx, r.client.db)
	updates := map[string]any{"summary": summary}
	if len(embedding) > 0 {
		updates["summary_embedding"] = pq.Float32Array(embedding)
	}
	res := db.Model(&entity.Document{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update summary: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	return nil
}

// Delete 删除文档
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Document{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

type documentSpeakers struct {
	DocumentID string
	Speakers   pq.StringArray `gorm:"type:text[]"`
}

// ListSpeakers 每个文档出现过的说话人（按名称排序）
func (r *DocumentRepository) ListSpeakers(ctx context.Context, documentIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(documentIDs))
	if len(documentIDs) == 0 {
		return out, nil
	}
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.ListSpeakers")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var rows []documentSpeakers
	err := db.Raw(`SELECT document_id, array_agg(DISTINCT speaker ORDER BY speaker) AS speakers
		FROM chunks
		WHERE document_id IN ? AND speaker IS NOT NULL AND speaker <> ''
		GROUP BY document_id`, documentIDs).Scan(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list speakers: %w", err)
	}
	for _, row := range rows {
		out[row.DocumentID] = []string(row.Speakers)
	}
	return out, nil
}

// likePatterns 小写并转义通配符后的 %term% 模式
func likePatterns(terms []string) []string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		p := "%" + escaper.Replace(t) + "%"
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func positive(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
