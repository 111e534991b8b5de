package entity

import (
	"time"
)

// Tier 分块粒度
type Tier string

const (
	TierSummary Tier = "summary"
	TierTopic   Tier = "topic"
	TierDetail  Tier = "detail"

	// TierFullDocument 由完整原文合成的片段，不落库
	TierFullDocument Tier = "full_document"
)

// Chunk 文档片段
// 每个片段只属于一个文档；Ordinal 在文档内唯一，顺序即叙述顺序。
type Chunk struct {
	ID          string   `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentID  string   `json:"document_id" gorm:"type:uuid;not null;uniqueIndex:idx_chunks_doc_ordinal"`
	Ordinal     int      `json:"ordinal" gorm:"not null;uniqueIndex:idx_chunks_doc_ordinal"`
	Tier        Tier     `json:"tier" gorm:"type:varchar(16);not null;index"`
	Content     string   `json:"content" gorm:"type:text;not null"`
	ContentHash string   `json:"content_hash" gorm:"type:varchar(64)"`
	StartTime   *float64 `json:"start_time,omitempty"`
	EndTime     *float64 `json:"end_time,omitempty"`
	Speaker     *string  `json:"speaker,omitempty" gorm:"type:varchar(255);index"`
	TokenCount  int      `json:"token_count"`
	// Overlap 开头与上一细节片段重叠的字节数
	Overlap     int      `json:"overlap,omitempty"`
	Importance  float64  `json:"importance"`
	Metadata    Metadata `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	// Embedding 稠密向量，存储于向量库
	Embedding []float32 `json:"-" gorm:"-"`
	// TokenEmbeddings 词元级向量，可为空
	TokenEmbeddings *TokenEmbeddings `json:"-" gorm:"-"`
	CreatedAt       time.Time        `json:"created_at"`
}

// TableName 指定表名
func (Chunk) TableName() string {
	return "chunks"
}

// SpeakerName 返回说话人，未标注时为空
func (c *Chunk) SpeakerName() string {
	if c == nil || c.Speaker == nil {
		return ""
	}
	return *c.Speaker
}

// HasTokenEmbeddings 是否携带词元级向量
func (c *Chunk) HasTokenEmbeddings() bool {
	return c != nil && c.TokenEmbeddings != nil && len(c.TokenEmbeddings.Vectors) > 0
}

// TokenEmbeddings 词元级（late-interaction）向量
type TokenEmbeddings struct {
	Vectors [][]float32 `json:"vectors"`
	Tokens  []string    `json:"tokens"`
}

// ChunkTokenEmbedding 词元级向量行
type ChunkTokenEmbedding struct {
	ChunkID    string           `gorm:"type:uuid;primaryKey"`
	DocumentID string           `gorm:"type:uuid;not null;index"`
	Embeddings *TokenEmbeddings `gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt  time.Time
}

// TableName 指定表名
func (ChunkTokenEmbedding) TableName() string {
	return "chunk_token_embeddings"
}

// StringPtr 返回字符串指针，空串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Float64Ptr 返回浮点数指针
func Float64Ptr(f float64) *float64 {
	return &f
}
