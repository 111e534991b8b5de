package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
	"recall-api/internal/interfaces/http/dto"
	"recall-api/pkg/errors"
	"recall-api/pkg/logger"
)

// DocumentHandler 文档目录处理器
type DocumentHandler struct {
	docs      DocumentCatalog
	remover   DocumentRemover
	engine    SearchEngine
	relations RelationshipFinder
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(docs DocumentCatalog, remover DocumentRemover, engine SearchEngine, relations RelationshipFinder) *DocumentHandler {
	return &DocumentHandler{
		docs:      docs,
		remover:   remover,
		engine:    engine,
		relations: relations,
	}
}

// ListDocuments 文档列表
// @Summary 文档列表
// @Description 默认按创建时间倒序分页
// @Tags Documents
// @Produce json
// @Param source_kind query string false "来源类型"
// @Param sort query string false "排序字段 created_at|title，前缀 - 表示倒序"
// @Param page query int false "页码"
// @Param page_size query int false "每页条数"
// @Success 200 {object} dto.Response[dto.DocumentListResponse]
// @Router /api/v1/documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	pageReq := dto.BindPage(c)

	sort, err := repository.ParseSort(c.Query("sort"), repository.DocumentSortFields, repository.DefaultDocumentSort)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	filter := &repository.DocumentFilter{Sort: sort}
	if kind := strings.TrimSpace(c.Query("source_kind")); kind != "" {
		sk := entity.SourceKind(strings.ToLower(kind))
		if !sk.Valid() {
			dto.BadRequest(c, "unknown source_kind: "+kind)
			return
		}
		filter.SourceKind = sk
	}

	result, err := h.docs.List(c.Request.Context(), filter, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		dto.HandleError(c, "list documents", err)
		return
	}

	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, dto.ToDocumentListResponse(result.Items), meta)
}

// GetDocument 文档详情
// @Summary 文档详情
// @Description 含全文、摘要与说话人
// @Tags Documents
// @Produce json
// @Param did path string true "文档 ID"
// @Success 200 {object} dto.Response[dto.DocumentDetail]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/documents/{did} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id := dto.BindDocumentID(c)
	ctx := logger.WithContext(c.Request.Context(), logger.DocumentIDKey, id)

	doc, err := h.docs.GetByID(ctx, id)
	if err != nil {
		dto.HandleError(c, "get document", err)
		return
	}
	if doc == nil {
		dto.HandleError(c, "get document", errors.ErrDocumentNotFound.WithDetail(id))
		return
	}

	speakers, err := h.docs.ListSpeakers(ctx, []string{id})
	if err != nil {
		logger.Warn(ctx, "list document speakers failed", "error", err.Error())
	}
	dto.Success(c, dto.ToDocumentDetail(doc, speakers[id]))
}

// DeleteDocument 删除文档
// @Summary 删除文档
// @Description 删除文档、片段、词元向量与向量库中的行
// @Tags Documents
// @Param did path string true "文档 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/documents/{did} [delete]
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id := dto.BindDocumentID(c)
	ctx := logger.WithContext(c.Request.Context(), logger.DocumentIDKey, id)

	doc, err := h.docs.GetByID(ctx, id)
	if err != nil {
		dto.HandleError(c, "delete document", err)
		return
	}
	if doc == nil {
		dto.HandleError(c, "delete document", errors.ErrDocumentNotFound.WithDetail(id))
		return
	}

	if err := h.remover.Delete(ctx, id); err != nil {
		dto.HandleError(c, "delete document", err)
		return
	}
	logger.Info(ctx, "document deleted", "title", doc.Title)
	dto.NoContent(c)
}

// SimilarDocuments 相似文档
// @Summary 相似文档
// @Description 摘要向量最近邻，不含自身
// @Tags Documents
// @Produce json
// @Param did path string true "文档 ID"
// @Param limit query int false "1..20，默认 5"
// @Success 200 {object} dto.Response[dto.SimilarDocumentsResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/documents/{did}/similar [get]
func (h *DocumentHandler) SimilarDocuments(c *gin.Context) {
	id := dto.BindDocumentID(c)
	limit, err := dto.QueryInt(c, "limit", 5, 1, 20)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	similar, err := h.engine.SimilarDocuments(c.Request.Context(), id, limit)
	if err != nil {
		dto.HandleError(c, "similar documents", err)
		return
	}
	if similar == nil {
		similar = []retrieval.SimilarDocument{}
	}
	dto.Success(c, &dto.SimilarDocumentsResponse{
		SourceDocumentID: id,
		SimilarDocuments: similar,
		Total:            len(similar),
	})
}

// Relationships 文档关系
// @Summary 文档关系
// @Description 两两推导共同说话人与共同主题
// @Tags Documents
// @Accept json
// @Produce json
// @Param body body dto.RelationshipsRequest true "文档 ID 列表"
// @Success 200 {object} dto.Response[dto.RelationshipsResponse]
// @Router /api/v1/documents/relationships [post]
func (h *DocumentHandler) Relationships(c *gin.Context) {
	var req dto.RelationshipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rels, err := h.relations.Relationships(c.Request.Context(), req.DocumentIDs)
	if err != nil {
		dto.HandleError(c, "document relationships", err)
		return
	}
	if rels == nil {
		rels = []entity.DocumentRelationship{}
	}
	dto.Success(c, &dto.RelationshipsResponse{
		Relationships: rels,
		Total:         len(rels),
	})
}
