package main

import (
	"context"
	"fmt"
	"time"

	"recall-api/internal/application/ingestion"
	"recall-api/internal/domain/entity"
	"recall-api/internal/infrastructure/messaging"
	"recall-api/pkg/logger"
	"recall-api/pkg/metrics"
)

// jobRunner 摄取服务中工作进程用到的部分
type jobRunner interface {
	Handle(ctx context.Context, jobID string) error
	DeadLetter(ctx context.Context, jobID string, attempts int, cause error)
}

// ingestHandler 处理失败返回错误，由消费者按退避重试
func ingestHandler(runner jobRunner) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.IngestDocumentMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("decode ingest message: %w", err)
		}
		if payload.JobID == "" {
			return fmt.Errorf("ingest message %s has no job id", msg.ID)
		}
		if payload.RequestID != "" {
			ctx = logger.WithContext(ctx, logger.RequestIDKey, payload.RequestID)
		}
		return runner.Handle(ctx, payload.JobID)
	}
}

func deadLetterHandler(runner jobRunner) messaging.FailureHandler {
	return func(ctx context.Context, msg *messaging.Message, retryCount int, err error) {
		var payload messaging.IngestDocumentMessage
		if decodeErr := msg.UnmarshalPayload(&payload); decodeErr != nil || payload.JobID == "" {
			logger.Warn(ctx, "dead letter without job id", "message_id", msg.ID)
			return
		}
		runner.DeadLetter(ctx, payload.JobID, retryCount, err)
	}
}

// recordResult 记录任务耗时；失败任务按开始时间计算
func recordResult(_ context.Context, job *entity.IngestionJob, result *ingestion.Result, _ error) {
	var elapsed time.Duration
	switch {
	case result != nil && result.Duration > 0:
		elapsed = result.Duration
	case job.StartedAt != nil:
		elapsed = time.Since(*job.StartedAt)
	default:
		return
	}
	metrics.IngestionDuration.WithLabelValues(string(job.SourceKind), string(job.Status)).Observe(elapsed.Seconds())
}
