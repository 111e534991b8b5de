package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionChunks 片段向量集合
	CollectionChunks = "document_chunks"
	// CollectionSummaries 文档摘要向量集合
	CollectionSummaries = "document_summaries"

	// DefaultDimension 默认向量维度
	DefaultDimension = 1536
)

func varChar(name string, maxLen int) *entity.Field {
	return &entity.Field{
		Name:       name,
		DataType:   entity.FieldTypeVarChar,
		TypeParams: map[string]string{"max_length": strconv.Itoa(maxLen)},
	}
}

func vectorField(dim int) *entity.Field {
	return &entity.Field{
		Name:       "vector",
		DataType:   entity.FieldTypeFloatVector,
		TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
	}
}

// ChunksSchema 片段向量 Collection Schema
func ChunksSchema(name string, dim int) *entity.Schema {
	pk := varChar("chunk_id", 64)
	pk.PrimaryKey = true
	return &entity.Schema{
		CollectionName: name,
		Description:    "Dense embeddings of document chunks",
		Fields: []*entity.Field{
			pk,
			vectorField(dim),
			varChar("document_id", 64),
			varChar("tier", 16),
			// 小写说话人，便于不区分大小写过滤
			varChar("speaker", 255),
			varChar("source_kind", 16),
			{Name: "created_at", DataType: entity.FieldTypeInt64},
		},
	}
}

// SummariesSchema 文档摘要向量 Collection Schema
func SummariesSchema(name string, dim int) *entity.Schema {
	pk := varChar("document_id", 64)
	pk.PrimaryKey = true
	return &entity.Schema{
		CollectionName: name,
		Description:    "Summary embeddings of documents",
		Fields: []*entity.Field{
			pk,
			vectorField(dim),
			varChar("source_kind", 16),
			{Name: "created_at", DataType: entity.FieldTypeInt64},
		},
	}
}
