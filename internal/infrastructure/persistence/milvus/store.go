package milvus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/repository"
	"recall-api/pkg/metrics"
)

// Store 向量存储，实现 retrieval.VectorStore
type Store struct {
	client *Client
}

var _ retrieval.VectorStore = (*Store)(nil)

// NewStore 创建向量存储
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

func (s *Store) ready() error {
	if s == nil || s.client == nil || s.client.milvus == nil {
		return retrieval.ErrVectorDisabled
	}
	return nil
}

// EnsureCollections 确保两个集合与索引存在并已加载，不做破坏性操作
func (s *Store) EnsureCollections(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	schemas := map[string]*entity.Schema{
		CollectionChunks:    ChunksSchema(s.client.CollectionName(CollectionChunks), s.client.dimension),
		CollectionSummaries: SummariesSchema(s.client.CollectionName(CollectionSummaries), s.client.dimension),
	}
	for name, schema := range schemas {
		exists, err := s.client.HasCollection(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to check collection %s: %w", name, err)
		}
		if !exists {
			if err := s.createCollection(ctx, name, schema); err != nil {
				return err
			}
		}
		if err := s.client.LoadCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to load collection %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) createCollection(ctx context.Context, name string, schema *entity.Schema) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	collName := s.client.CollectionName(name)
	if err := s.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	m, ef := s.client.config.HNSWM, s.client.config.HNSWEfConstruction
	if m <= 0 {
		m = 16
	}
	if ef <= 0 {
		ef = 200
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, m, ef)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to build index: %w", err)
	}
	if err := s.client.milvus.CreateIndex(ctx, collName, "vector", idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// InsertChunks 写入片段向量
func (s *Store) InsertChunks(ctx context.Context, rows []*retrieval.VectorChunk) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertChunks",
		trace.WithAttributes(attribute.Int("count", len(rows))))
	defer span.End()

	n := len(rows)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	docIDs := make([]string, n)
	tiers := make([]string, n)
	speakers := make([]string, n)
	kinds := make([]string, n)
	createdAt := make([]int64, n)
	for i, row := range rows {
		if len(row.Vector) != s.client.dimension {
			return fmt.Errorf("chunk %s: vector dimension %d, want %d", row.ChunkID, len(row.Vector), s.client.dimension)
		}
		ids[i] = row.ChunkID
		vectors[i] = row.Vector
		docIDs[i] = row.DocumentID
		tiers[i] = row.Tier
		speakers[i] = strings.ToLower(row.Speaker)
		kinds[i] = row.SourceKind
		createdAt[i] = row.CreatedAt
	}

	_, err := s.client.milvus.Insert(ctx, s.client.CollectionName(CollectionChunks), "",
		entity.NewColumnVarChar("chunk_id", ids),
		entity.NewColumnFloatVector("vector", s.client.dimension, vectors),
		entity.NewColumnVarChar("document_id", docIDs),
		entity.NewColumnVarChar("tier", tiers),
		entity.NewColumnVarChar("speaker", speakers),
		entity.NewColumnVarChar("source_kind", kinds),
		entity.NewColumnInt64("created_at", createdAt),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// SearchChunks 最近邻检索，Score 为余弦相似度
func (s *Store) SearchChunks(ctx context.Context, params *retrieval.VectorSearchParams) ([]*retrieval.VectorHit, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if params == nil || len(params.QueryVector) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchChunks",
		trace.WithAttributes(attribute.Int("top_k", params.TopK)))
	defer span.End()

	results, err := s.search(ctx, CollectionChunks, chunkExpr(params.Filter),
		[]string{"chunk_id", "document_id"}, params.QueryVector, params.TopK)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var hits []*retrieval.VectorHit
	for _, result := range results {
		idCol, _ := result.Fields.GetColumn("chunk_id").(*entity.ColumnVarChar)
		docCol, _ := result.Fields.GetColumn("document_id").(*entity.ColumnVarChar)
		for i := 0; i < result.ResultCount; i++ {
			hit := &retrieval.VectorHit{Score: result.Scores[i]}
			if idCol != nil {
				hit.ChunkID = idCol.Data()[i]
			}
			if docCol != nil {
				hit.DocumentID = docCol.Data()[i]
			}
			hits = append(hits, hit)
		}
	}
	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// DeleteByDocument 删除文档在两个集合中的向量
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteByDocument",
		trace.WithAttributes(attribute.String("document_id", documentID)))
	defer span.End()

	expr := "document_id == " + strconv.Quote(documentID)
	for _, name := range []string{CollectionChunks, CollectionSummaries} {
		if err := s.client.milvus.Delete(ctx, s.client.CollectionName(name), "", expr); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to delete vectors from %s: %w", name, err)
		}
	}
	return nil
}

// UpsertSummary 写入或替换文档摘要向量
func (s *Store) UpsertSummary(ctx context.Context, row *retrieval.VectorSummary) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(row.Vector) != s.client.dimension {
		return fmt.Errorf("summary %s: vector dimension %d, want %d", row.DocumentID, len(row.Vector), s.client.dimension)
	}
	ctx, span := tracer.Start(ctx, "milvus.UpsertSummary",
		trace.WithAttributes(attribute.String("document_id", row.DocumentID)))
	defer span.End()

	_, err := s.client.milvus.Upsert(ctx, s.client.CollectionName(CollectionSummaries), "",
		entity.NewColumnVarChar("document_id", []string{row.DocumentID}),
		entity.NewColumnFloatVector("vector", s.client.dimension, [][]float32{row.Vector}),
		entity.NewColumnVarChar("source_kind", []string{row.SourceKind}),
		entity.NewColumnInt64("created_at", []int64{row.CreatedAt}),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

// SearchSummaries 摘要向量最近邻，excludeID 非空时排除该文档
func (s *Store) SearchSummaries(ctx context.Context, vector []float32, topK int, excludeID string) ([]*retrieval.VectorHit, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchSummaries",
		trace.WithAttributes(attribute.Int("top_k", topK)))
	defer span.End()

	expr := ""
	if excludeID != "" {
		expr = "document_id != " + strconv.Quote(excludeID)
	}
	results, err := s.search(ctx, CollectionSummaries, expr, []string{"document_id"}, vector, topK)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var hits []*retrieval.VectorHit
	for _, result := range results {
		docCol, _ := result.Fields.GetColumn("document_id").(*entity.ColumnVarChar)
		for i := 0; i < result.ResultCount; i++ {
			hit := &retrieval.VectorHit{Score: result.Scores[i]}
			if docCol != nil {
				hit.DocumentID = docCol.Data()[i]
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func (s *Store) search(ctx context.Context, name, expr string, output []string, vector []float32, topK int) ([]client.SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}
	ef := s.client.config.SearchEf
	if ef < topK {
		ef = max(topK, 64)
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}
	if s.client.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.client.config.SearchTimeout)
		defer cancel()
	}

	start := time.Now()
	results, err := s.client.milvus.Search(ctx,
		s.client.CollectionName(name),
		nil,
		expr,
		output,
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	metrics.MilvusSearchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MilvusSearchTotal.WithLabelValues(name, "error").Inc()
		return nil, fmt.Errorf("failed to search %s: %w", name, err)
	}
	metrics.MilvusSearchTotal.WithLabelValues(name, "success").Inc()
	return results, nil
}

// chunkExpr 将片段过滤转换为 Milvus 布尔表达式
func chunkExpr(f *repository.ChunkFilter) string {
	if f.IsZero() {
		return ""
	}
	var parts []string
	if len(f.DocumentIDs) > 0 {
		parts = append(parts, "document_id in "+quoteList(f.DocumentIDs))
	}
	if f.Speaker != "" {
		parts = append(parts, "speaker == "+strconv.Quote(strings.ToLower(f.Speaker)))
	}
	if f.SourceKind != "" {
		parts = append(parts, "source_kind == "+strconv.Quote(string(f.SourceKind)))
	}
	if len(f.Tiers) > 0 {
		tiers := make([]string, len(f.Tiers))
		for i, t := range f.Tiers {
			tiers[i] = string(t)
		}
		parts = append(parts, "tier in "+quoteList(tiers))
	}
	if f.CreatedAfter != nil {
		parts = append(parts, fmt.Sprintf("created_at >= %d", f.CreatedAfter.Unix()))
	}
	if f.CreatedBefore != nil {
		parts = append(parts, fmt.Sprintf("created_at <= %d", f.CreatedBefore.Unix()))
	}
	return strings.Join(parts, " && ")
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
