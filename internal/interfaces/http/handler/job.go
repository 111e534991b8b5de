package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
	"recall-api/internal/interfaces/http/dto"
	"recall-api/pkg/errors"
	"recall-api/pkg/logger"
)

// JobHandler 摄取任务处理器
type JobHandler struct {
	jobRepo JobReader
}

// NewJobHandler 创建任务处理器
func NewJobHandler(jobRepo JobReader) *JobHandler {
	return &JobHandler{
		jobRepo: jobRepo,
	}
}

// GetJob 获取任务详情
// @Summary 获取摄取任务
// @Description 查询摄取任务的状态、文档 ID 与失败原因
// @Tags Ingest
// @Produce json
// @Param jid path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/ingest/jobs/{jid} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := dto.BindJobID(c)
	ctx = logger.WithContext(ctx, logger.JobIDKey, jobID)

	job, err := h.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		dto.HandleError(c, "get job", err)
		return
	}
	if job == nil {
		dto.HandleError(c, "get job", errors.ErrJobNotFound.WithDetail(jobID))
		return
	}
	dto.Success(c, dto.ToJobResponse(job))
}

// ListJobs 最近的摄取任务
// @Summary 摄取任务列表
// @Tags Ingest
// @Produce json
// @Param status query string false "pending|running|completed|failed"
// @Param page query int false "页码"
// @Param page_size query int false "每页条数"
// @Success 200 {object} dto.Response[dto.JobListResponse]
// @Router /api/v1/ingest/jobs [get]
func (h *JobHandler) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()
	pageReq := dto.BindPage(c)

	status := entity.JobStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	switch status {
	case "", entity.JobStatusPending, entity.JobStatusRunning, entity.JobStatusCompleted, entity.JobStatusFailed:
	default:
		dto.BadRequest(c, "unknown status: "+string(status))
		return
	}

	result, err := h.jobRepo.ListRecent(ctx, status, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		dto.HandleError(c, "list jobs", err)
		return
	}

	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, dto.ToJobListResponse(result.Items), meta)
}
