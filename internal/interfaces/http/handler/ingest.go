package handler

import (
	"github.com/gin-gonic/gin"

	"recall-api/internal/application/ingestion"
	"recall-api/internal/domain/entity"
	"recall-api/internal/interfaces/http/dto"
	"recall-api/pkg/logger"
)

// IngestHandler 摄取提交处理器
// 提交只创建任务并入队，实际处理由 ingest-worker 完成。
type IngestHandler struct {
	ingestor Ingestor
}

// NewIngestHandler 创建摄取处理器
func NewIngestHandler(ingestor Ingestor) *IngestHandler {
	return &IngestHandler{ingestor: ingestor}
}

// SubmitText 提交文本或 Markdown
// @Summary 提交文本
// @Tags Ingest
// @Accept json
// @Produce json
// @Param body body ingestion.TextSubmission true "文本提交"
// @Success 202 {object} dto.Response[dto.IngestAcceptedResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/ingest/text [post]
func (h *IngestHandler) SubmitText(c *gin.Context) {
	var req ingestion.TextSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.SourceKind == "" {
		req.SourceKind = entity.SourceKindText
	}

	jobID, err := h.ingestor.SubmitText(c.Request.Context(), req)
	h.accepted(c, jobID, err)
}

// SubmitTranscript 提交带说话人与时间的转写
// @Summary 提交转写
// @Tags Ingest
// @Accept json
// @Produce json
// @Param body body ingestion.TranscriptSubmission true "转写提交"
// @Success 202 {object} dto.Response[dto.IngestAcceptedResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/ingest/transcript [post]
func (h *IngestHandler) SubmitTranscript(c *gin.Context) {
	var req ingestion.TranscriptSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.SourceKind == "" {
		req.SourceKind = entity.SourceKindAudio
	}

	jobID, err := h.ingestor.SubmitTranscript(c.Request.Context(), req)
	h.accepted(c, jobID, err)
}

// SubmitQuick 快速记录
// @Summary 快速记录
// @Description 语音或移动端的一句话记录
// @Tags Ingest
// @Accept json
// @Produce json
// @Param body body dto.QuickIngestRequest true "快速记录"
// @Success 202 {object} dto.Response[dto.IngestAcceptedResponse]
// @Router /api/v1/ingest/quick [post]
func (h *IngestHandler) SubmitQuick(c *gin.Context) {
	var req dto.QuickIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Source == "" {
		req.Source = "voice"
	}

	jobID, err := h.ingestor.SubmitQuick(c.Request.Context(), req.Content, req.Source)
	h.accepted(c, jobID, err)
}

func (h *IngestHandler) accepted(c *gin.Context, jobID string, err error) {
	if err != nil {
		dto.HandleError(c, "submit ingestion", err)
		return
	}
	ctx := logger.WithContext(c.Request.Context(), logger.JobIDKey, jobID)
	logger.Info(ctx, "ingestion job accepted", "path", c.FullPath())
	dto.Accepted(c, &dto.IngestAcceptedResponse{
		JobID:  jobID,
		Status: entity.JobStatusPending,
	})
}
