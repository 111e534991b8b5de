// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/lib/pq"
)

// SourceKind 文档来源类型
type SourceKind string

const (
	SourceKindText  SourceKind = "text"
	SourceKindAudio SourceKind = "audio"
	SourceKindVideo SourceKind = "video"
)

// Valid 检查来源类型是否合法
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindText, SourceKindAudio, SourceKindVideo:
		return true
	}
	return false
}

// Metadata 自由格式元数据
type Metadata map[string]any

// String 读取字符串类型的元数据
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Document 摄取内容单元
// 原文一经写入不可修改；摘要与摘要向量可异步（重新）计算。
type Document struct {
	ID               string          `json:"id" gorm:"type:uuid;primaryKey"`
	Title            string          `json:"title" gorm:"type:varchar(512);not null;index"`
	SourceKind       SourceKind      `json:"source_kind" gorm:"type:varchar(16);not null;default:'text'"`
	OriginRef        string          `json:"origin_ref,omitempty" gorm:"type:text"`
	Content          string          `json:"content" gorm:"type:text;not null"`
	ContentHash      string          `json:"content_hash" gorm:"type:varchar(64);index"`
	Summary          string          `json:"summary,omitempty" gorm:"type:text"`
	SummaryEmbedding pq.Float32Array `json:"-" gorm:"type:float4[]"`
	Metadata         Metadata        `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt        time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Document) TableName() string {
	return "documents"
}

// NewDocument 创建新文档
func NewDocument(id, title string, kind SourceKind, content string) *Document {
	if !kind.Valid() {
		kind = SourceKindText
	}
	return &Document{
		ID:         id,
		Title:      title,
		SourceKind: kind,
		Content:    content,
		Metadata:   Metadata{},
		CreatedAt:  time.Now(),
	}
}

// HasSummary 是否已生成摘要
func (d *Document) HasSummary() bool {
	return d.Summary != "" && len(d.SummaryEmbedding) > 0
}

// SetSummary 设置摘要及其向量
func (d *Document) SetSummary(summary string, embedding []float32) {
	d.Summary = summary
	d.SummaryEmbedding = embedding
}

// DocumentRef 文档引用（用于展示与推理）
type DocumentRef struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	SourceKind SourceKind `json:"source_kind"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Ref 返回文档引用
func (d *Document) Ref() DocumentRef {
	return DocumentRef{
		ID:         d.ID,
		Title:      d.Title,
		SourceKind: d.SourceKind,
		CreatedAt:  d.CreatedAt,
	}
}
