package dto

import (
	"time"
	"unicode/utf8"

	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
)

// DocumentItem 文档列表项
type DocumentItem struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	SourceKind    entity.SourceKind `json:"source_kind"`
	OriginRef     string            `json:"origin_ref,omitempty"`
	ContentLength int               `json:"content_length"`
	HasSummary    bool              `json:"has_summary"`
	Metadata      entity.Metadata   `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// DocumentDetail 文档详情
type DocumentDetail struct {
	DocumentItem
	Content  string   `json:"content"`
	Summary  string   `json:"summary,omitempty"`
	Speakers []string `json:"speakers,omitempty"`
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Documents []*DocumentItem `json:"documents"`
}

// ToDocumentItem 将领域实体转换为列表项
func ToDocumentItem(d *entity.Document) *DocumentItem {
	if d == nil {
		return nil
	}
	return &DocumentItem{
		ID:            d.ID,
		Title:         d.Title,
		SourceKind:    d.SourceKind,
		OriginRef:     d.OriginRef,
		ContentLength: utf8.RuneCountInString(d.Content),
		HasSummary:    d.Summary != "",
		Metadata:      d.Metadata,
		CreatedAt:     d.CreatedAt,
	}
}

// ToDocumentDetail 将领域实体转换为详情
func ToDocumentDetail(d *entity.Document, speakers []string) *DocumentDetail {
	if d == nil {
		return nil
	}
	return &DocumentDetail{
		DocumentItem: *ToDocumentItem(d),
		Content:      d.Content,
		Summary:      d.Summary,
		Speakers:     speakers,
	}
}

// ToDocumentListResponse 将文档列表转换为响应
func ToDocumentListResponse(docs []*entity.Document) *DocumentListResponse {
	resp := &DocumentListResponse{Documents: make([]*DocumentItem, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, ToDocumentItem(d))
	}
	return resp
}

// SimilarDocumentsResponse 相似文档响应
type SimilarDocumentsResponse struct {
	SourceDocumentID string                      `json:"source_document_id"`
	SimilarDocuments []retrieval.SimilarDocument `json:"similar_documents"`
	Total            int                         `json:"total"`
}

// RelationshipsRequest 文档关系请求
type RelationshipsRequest struct {
	DocumentIDs []string `json:"document_ids" binding:"required,min=2,max=20"`
}

// RelationshipsResponse 文档关系响应
type RelationshipsResponse struct {
	Relationships []entity.DocumentRelationship `json:"relationships"`
	Total         int                           `json:"total"`
}
