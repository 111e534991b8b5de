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

const insertBatchSize = 200

// ChunkRepository 片段仓储实现
type ChunkRepository struct {
	client *Client
}

var _ repository.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository 创建片段仓储
func NewChunkRepository(client *Client) *ChunkRepository {
	return &ChunkRepository{client: client}
}

// CreateBatch 批量写入片段
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []*entity.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.CreateBatch")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.CreateInBatches(chunks, insertBatchSize).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chunks: %w", err)
	}
	return nil
}

// SaveTokenEmbeddings 写入词元级向量
func (r *ChunkRepository) SaveTokenEmbeddings(ctx context.Context, rows []*entity.ChunkTokenEmbedding) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.SaveTokenEmbeddings")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.CreateInBatches(rows, insertBatchSize).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save token embeddings: %w", err)
	}
	return nil
}

// GetByIDs 批量获取片段
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.GetByIDs")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var chunks []*entity.Chunk
	if err := db.Where("id IN ?", ids).Find(&chunks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	return chunks, nil
}

// ListByDocument 按序号列出文档片段；limit<=0 表示不限
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string, tiers []entity.Tier, limit int) ([]*entity.Chunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.ListByDocument")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	query := db.Where("document_id = ?", documentID)
	if len(tiers) > 0 {
		query = query.Where("tier IN ?", tiers)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var chunks []*entity.Chunk
	if err := query.Order("ordinal ASC").Find(&chunks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

// GetNeighbors 同一文档中序号前后最近的细节片段，不存在时为 nil
func (r *ChunkRepository) GetNeighbors(ctx context.Context, documentID string, ordinal int) (*entity.Chunk, *entity.Chunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.GetNeighbors")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	find := func(cond, order string) (*entity.Chunk, error) {
		var c entity.Chunk
		err := db.Where("document_id = ? AND tier = ?", documentID, entity.TierDetail).
			Where(cond, ordinal).
			Order(order).
			First(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &c, nil
	}

	prev, err := find("ordinal < ?", "ordinal DESC")
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("failed to get previous chunk: %w", err)
	}
	next, err := find("ordinal > ?", "ordinal ASC")
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("failed to get next chunk: %w", err)
	}
	return prev, next, nil
}

// LexicalSearch 全文检索，按 ts_rank_cd 倒序
func (r *ChunkRepository) LexicalSearch(ctx context.Context, query string, limit int, filter *repository.ChunkFilter) ([]repository.LexicalHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.LexicalSearch")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	cfg := r.client.tsConfig()
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT c.id AS chunk_id, ts_rank_cd(to_tsvector(%[1]s, c.content), q) AS rank
		FROM chunks c
		JOIN documents d ON d.id = c.document_id,
		websearch_to_tsquery(%[1]s, ?) q
		WHERE to_tsvector(%[1]s, c.content) @@ q`, cfg)
	args := []any{query}
	where, fargs := chunkFilterSQL(filter)
	sb.WriteString(where)
	args = append(args, fargs...)
	sb.WriteString(" ORDER BY rank DESC, c.id LIMIT ?")
	args = append(args, positive(limit, 20))

	db := getDB(ctx, r.client.db)
	var hits []repository.LexicalHit
	if err := db.Raw(sb.String(), args...).Scan(&hits).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	return hits, nil
}

// chunkFilterSQL 以 " AND ..." 形式追加过滤条件，别名 c=chunks d=documents
func chunkFilterSQL(f *repository.ChunkFilter) (string, []any) {
	if f.IsZero() {
		return "", nil
	}
	var sb strings.Builder
	var args []any
	if len(f.DocumentIDs) > 0 {
		sb.WriteString(" AND c.document_id IN ?")
		args = append(args, f.DocumentIDs)
	}
	if f.Speaker != "" {
		sb.WriteString(" AND LOWER(c.speaker) = LOWER(?)")
		args = append(args, f.Speaker)
	}
	if f.SourceKind != "" {
		sb.WriteString(" AND d.source_kind = ?")
		args = append(args, string(f.SourceKind))
	}
	if len(f.Tiers) > 0 {
		tiers := make([]string, len(f.Tiers))
		for i, t := range f.Tiers {
			tiers[i] = string(t)
		}
		sb.WriteString(" AND c.tier IN ?")
		args = append(args, tiers)
	}
	if f.CreatedAfter != nil {
		sb.WriteString(" AND d.created_at >= ?")
		args = append(args, *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		sb.WriteString(" AND d.created_at <= ?")
		args = append(args, *f.CreatedBefore)
	}
	return sb.String(), args
}

// FindBySpeaker 说话人或正文包含该名字的片段，最新文档优先
func (r *ChunkRepository) FindBySpeaker(ctx context.Context, name string, limit int) ([]*entity.Chunk, error) {
	patterns := likePatterns([]string{name})
	if len(patterns) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.FindBySpeaker")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var chunks []*entity.Chunk
	err := db.Select("chunks.*").
		Joins("JOIN documents d ON d.id = chunks.document_id").
		Where("LOWER(chunks.speaker) LIKE ? OR LOWER(chunks.content) LIKE ?", patterns[0], patterns[0]).
		Order("d.created_at DESC, chunks.ordinal ASC").
		Limit(positive(limit, 20)).
		Find(&chunks).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to find chunks by speaker: %w", err)
	}
	return chunks, nil
}

// ListDistinctSpeakers 出现过的说话人，出现次数多者优先
func (r *ChunkRepository) ListDistinctSpeakers(ctx context.Context, limit int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.ListDistinctSpeakers")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var speakers []string
	err := db.Model(&entity.Chunk{}).
		Select("speaker").
		Where("speaker IS NOT NULL AND speaker <> ''").
		Group("speaker").
		Order("COUNT(*) DESC, speaker ASC").
		Limit(positive(limit, 100)).
		Pluck("speaker", &speakers).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list speakers: %w", err)
	}
	return speakers, nil
}

// FindCreatedBetween 时间窗口内创建的文档的片段；perDocument>0 时每个文档最多取前 N 个
func (r *ChunkRepository) FindCreatedBetween(ctx context.Context, start, end time.Time, perDocument, limit int) ([]*entity.Chunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.FindCreatedBetween")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var chunks []*entity.Chunk
	err := db.Raw(`SELECT t.* FROM (
			SELECT c.*, d.created_at AS document_created_at,
				ROW_NUMBER() OVER (PARTITION BY c.document_id ORDER BY c.ordinal) AS rn
			FROM chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE d.created_at >= ? AND d.created_at <= ?
		) t
		WHERE ? <= 0 OR t.rn <= ?
		ORDER BY t.document_created_at DESC, t.ordinal ASC
		LIMIT ?`, start, end, perDocument, perDocument, positive(limit, 200)).
		Scan(&chunks).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to find chunks in range: %w", err)
	}
	return chunks, nil
}

type relatedRow struct {
	DocumentID string
	MatchCount int
}

// FindRelatedDocuments 说话人命中或正文包含任一子串的片段所属文档，按命中片段数倒序
func (r *ChunkRepository) FindRelatedDocuments(ctx context.Context, q repository.RelatedQuery) ([]repository.RelatedDocument, error) {
	patterns := likePatterns(q.Patterns)
	if len(q.Speakers) == 0 && len(patterns) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.FindRelatedDocuments")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(`SELECT c.document_id, COUNT(DISTINCT c.id) AS match_count
		FROM chunks c
		WHERE (c.speaker = ANY(?) OR LOWER(c.content) LIKE ANY(?))`)
	args := []any{pq.StringArray(q.Speakers), pq.StringArray(patterns)}
	if len(q.ExcludeIDs) > 0 {
		sb.WriteString(" AND c.document_id NOT IN ?")
		args = append(args, q.ExcludeIDs)
	}
	sb.WriteString(" GROUP BY c.document_id ORDER BY match_count DESC, c.document_id LIMIT ?")
	args = append(args, positive(q.Limit, 5))

	db := getDB(ctx, r.client.db)
	var rows []relatedRow
	if err := db.Raw(sb.String(), args...).Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to find related documents: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.DocumentID
	}
	var docs []*entity.Document
	if err := db.Omit("summary_embedding").Where("id IN ?", ids).Find(&docs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load related documents: %w", err)
	}
	byID := make(map[string]*entity.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	out := make([]repository.RelatedDocument, 0, len(rows))
	for _, row := range rows {
		if d, ok := byID[row.DocumentID]; ok {
			out = append(out, repository.RelatedDocument{Document: d, MatchCount: row.MatchCount})
		}
	}
	return out, nil
}

// GetTokenEmbeddings 批量读取词元级向量
func (r *ChunkRepository) GetTokenEmbeddings(ctx context.Context, chunkIDs []string) (map[string]*entity.TokenEmbeddings, error) {
	out := make(map[string]*entity.TokenEmbeddings, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.GetTokenEmbeddings")
	defer span.End()
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	db := getDB(ctx, r.client.db)
	var rows []*entity.ChunkTokenEmbedding
	if err := db.Where("chunk_id IN ?", chunkIDs).Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get token embeddings: %w", err)
	}
	for _, row := range rows {
		out[row.ChunkID] = row.Embeddings
	}
	return out, nil
}

// DeleteByDocument 删除文档的全部片段及词元向量
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.DeleteByDocument")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.ChunkTokenEmbedding{}, "document_id = ?", documentID).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete token embeddings: %w", err)
	}
	if err := db.Delete(&entity.Chunk{}, "document_id = ?", documentID).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
