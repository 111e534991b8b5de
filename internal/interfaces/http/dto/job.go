package dto

import (
	"time"

	"recall-api/internal/domain/entity"
)

// IngestAcceptedResponse 提交摄取后的响应
type IngestAcceptedResponse struct {
	JobID  string           `json:"job_id"`
	Status entity.JobStatus `json:"status"`
}

// QuickIngestRequest 快速记录请求
type QuickIngestRequest struct {
	Content string `json:"content" binding:"required"`
	Source  string `json:"source,omitempty"`
}

// JobResponse 摄取任务响应
type JobResponse struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	SourceKind   entity.SourceKind `json:"source_kind"`
	Status       entity.JobStatus  `json:"status"`
	DocumentID   string            `json:"document_id,omitempty"`
	ChunkCount   int               `json:"chunk_count"`
	ErrorMessage string            `json:"error_message,omitempty"`
	DurationMs   int               `json:"duration_ms,omitempty"`
	RetryCount   int               `json:"retry_count"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// JobListResponse 任务列表响应
type JobListResponse struct {
	Jobs []*JobResponse `json:"jobs"`
}

// ToJobResponse 将领域实体转换为响应 DTO
func ToJobResponse(j *entity.IngestionJob) *JobResponse {
	if j == nil {
		return nil
	}
	return &JobResponse{
		ID:           j.ID,
		Title:        j.Title,
		SourceKind:   j.SourceKind,
		Status:       j.Status,
		DocumentID:   j.DocumentID,
		ChunkCount:   j.ChunkCount,
		ErrorMessage: j.ErrorMessage,
		DurationMs:   j.DurationMs,
		RetryCount:   j.RetryCount,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}

// ToJobListResponse 将领域实体列表转换为响应 DTO
func ToJobListResponse(jobs []*entity.IngestionJob) *JobListResponse {
	resp := &JobListResponse{
		Jobs: make([]*JobResponse, 0, len(jobs)),
	}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, ToJobResponse(j))
	}
	return resp
}
