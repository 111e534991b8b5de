package retrieval

import (
	"context"
	"fmt"

	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
	"recall-api/pkg/logger"
	"recall-api/pkg/tracer"
)

// DocumentWriter 文档写入能力
type DocumentWriter interface {
	Create(ctx context.Context, doc *entity.Document) error
	UpdateSummary(ctx context.Context, id, summary string, embedding []float32) error
	Delete(ctx context.Context, id string) error
}

// ChunkWriter 片段写入能力
type ChunkWriter interface {
	CreateBatch(ctx context.Context, chunks []*entity.Chunk) error
	SaveTokenEmbeddings(ctx context.Context, rows []*entity.ChunkTokenEmbedding) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Indexer 以单个事务写入文档、片段、词元向量与向量索引
type Indexer struct {
	tx     repository.Transactor
	docs   DocumentWriter
	chunks ChunkWriter
	vector VectorStore
}

func NewIndexer(tx repository.Transactor, docs DocumentWriter, chunks ChunkWriter, vector VectorStore) *Indexer {
	return &Indexer{tx: tx, docs: docs, chunks: chunks, vector: vector}
}

func (i *Indexer) VectorEnabled() bool {
	return i != nil && i.vector != nil
}

// Write 原子写入：任一步失败整体回滚；向量写入后若提交失败，按文档删除向量行作为补偿
func (i *Indexer) Write(ctx context.Context, doc *entity.Document, chunks []*entity.Chunk) error {
	ctx, span := tracer.Start(ctx, "retrieval.Indexer.Write")
	defer span.End()

	if doc == nil {
		return fmt.Errorf("document is nil")
	}

	tokenRows := make([]*entity.ChunkTokenEmbedding, 0)
	vectorRows := make([]*VectorChunk, 0, len(chunks))
	for _, c := range chunks {
		c.DocumentID = doc.ID
		if c.HasTokenEmbeddings() {
			tokenRows = append(tokenRows, &entity.ChunkTokenEmbedding{
				ChunkID:    c.ID,
				DocumentID: doc.ID,
				Embeddings: c.TokenEmbeddings,
			})
		}
		if len(c.Embedding) > 0 {
			vectorRows = append(vectorRows, &VectorChunk{
				ChunkID:    c.ID,
				DocumentID: doc.ID,
				Tier:       string(c.Tier),
				Speaker:    c.SpeakerName(),
				SourceKind: string(doc.SourceKind),
				CreatedAt:  doc.CreatedAt.Unix(),
				Vector:     c.Embedding,
			})
		}
	}

	vectorWritten := false
	err := i.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := i.docs.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := i.chunks.CreateBatch(ctx, chunks); err != nil {
			return fmt.Errorf("create chunks: %w", err)
		}
		if len(tokenRows) > 0 {
			if err := i.chunks.SaveTokenEmbeddings(ctx, tokenRows); err != nil {
				return fmt.Errorf("save token embeddings: %w", err)
			}
		}
		if i.vector != nil && len(vectorRows) > 0 {
			if err := i.vector.InsertChunks(ctx, vectorRows); err != nil {
				return fmt.Errorf("insert vectors: %w", err)
			}
			vectorWritten = true
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if vectorWritten {
			if derr := i.vector.DeleteByDocument(context.WithoutCancel(ctx), doc.ID); derr != nil {
				logger.Error(ctx, "failed to compensate vector rows", derr, "document_id", doc.ID)
			}
		}
		return err
	}
	return nil
}

// AttachSummary 更新文档摘要并写入摘要向量集合
func (i *Indexer) AttachSummary(ctx context.Context, doc *entity.Document, summary string, embedding []float32) error {
	ctx, span := tracer.Start(ctx, "retrieval.Indexer.AttachSummary")
	defer span.End()

	if err := i.docs.UpdateSummary(ctx, doc.ID, summary, embedding); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	doc.SetSummary(summary, embedding)
	if i.vector == nil || len(embedding) == 0 {
		return nil
	}
	if err := i.vector.UpsertSummary(ctx, &VectorSummary{
		DocumentID: doc.ID,
		SourceKind: string(doc.SourceKind),
		CreatedAt:  doc.CreatedAt.Unix(),
		Vector:     embedding,
	}); err != nil {
		return fmt.Errorf("upsert summary vector: %w", err)
	}
	return nil
}

// Delete 在事务中删除片段、词元向量与文档，提交后删除向量行
func (i *Indexer) Delete(ctx context.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "retrieval.Indexer.Delete")
	defer span.End()

	err := i.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := i.chunks.DeleteByDocument(ctx, documentID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		if err := i.docs.Delete(ctx, documentID); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if i.vector != nil {
		if err := i.vector.DeleteByDocument(ctx, documentID); err != nil {
			logger.Warn(ctx, "vector rows left after document delete", "document_id", documentID, "error", err)
		}
	}
	return nil
}
