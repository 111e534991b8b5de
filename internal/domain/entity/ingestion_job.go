package entity

import (
	"encoding/json"
	"time"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IngestionJob 摄取任务
type IngestionJob struct {
	ID           string          `json:"id" gorm:"type:uuid;primaryKey"`
	SourceKind   SourceKind      `json:"source_kind" gorm:"type:varchar(16);not null"`
	Title        string          `json:"title" gorm:"type:varchar(512)"`
	Status       JobStatus       `json:"status" gorm:"type:varchar(16);not null;index"`
	Input        json.RawMessage `json:"-" gorm:"type:jsonb"`
	DocumentID   string          `json:"document_id,omitempty" gorm:"type:varchar(36)"`
	ChunkCount   int             `json:"chunk_count"`
	ErrorMessage string          `json:"error_message,omitempty" gorm:"type:text"`
	DurationMs   int             `json:"duration_ms,omitempty"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// TableName 指定表名
func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// NewIngestionJob 创建新任务
func NewIngestionJob(id string, kind SourceKind, title string, input json.RawMessage) *IngestionJob {
	return &IngestionJob{
		ID:         id,
		SourceKind: kind,
		Title:      title,
		Status:     JobStatusPending,
		Input:      input,
		CreatedAt:  time.Now(),
	}
}

// Start 开始执行任务
func (j *IngestionJob) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// Complete 完成任务
func (j *IngestionJob) Complete(documentID string, chunkCount int) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.DocumentID = documentID
	j.ChunkCount = chunkCount
	j.ErrorMessage = ""
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Fail 任务失败
func (j *IngestionJob) Fail(errMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Retry 重试任务
func (j *IngestionJob) Retry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ErrorMessage = ""
}

// CanRetry 检查是否可以重试
func (j *IngestionJob) CanRetry(maxRetries int) bool {
	return j.RetryCount < maxRetries && j.Status == JobStatusFailed
}

// Done 任务是否已结束
func (j *IngestionJob) Done() bool {
	return j.Status == JobStatusCompleted
}
