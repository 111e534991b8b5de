package repository

import (
	"context"

	"recall-api/internal/domain/entity"
)

// JobRepository 摄取任务仓储接口
type JobRepository interface {
	// Create 创建任务
	Create(ctx context.Context, job *entity.IngestionJob) error

	// GetByID 根据 ID 获取任务，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.IngestionJob, error)

	// Update 更新任务
	Update(ctx context.Context, job *entity.IngestionJob) error

	// ListRecent 最近的任务
	ListRecent(ctx context.Context, status entity.JobStatus, pagination Pagination) (*PagedResult[*entity.IngestionJob], error)
}
