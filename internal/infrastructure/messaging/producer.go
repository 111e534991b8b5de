package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"recall-api/internal/domain/entity"
	"recall-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishIngestJob 发布摄取任务
func (p *Producer) PublishIngestJob(ctx context.Context, job *IngestDocumentMessage) (string, error) {
	msg, err := NewMessage(job.JobID, MessageTypeIngestDocument, job)
	if err != nil {
		return "", err
	}
	msg.SetMetadata("source_kind", job.SourceKind)
	if job.RequestID != "" {
		msg.SetMetadata("request_id", job.RequestID)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.SetMetadata("trace_id", sc.TraceID().String())
	}
	return p.Publish(ctx, StreamIngestDocuments, msg)
}

// Enqueue 投递摄取任务，实现摄取服务的队列端口
func (p *Producer) Enqueue(ctx context.Context, job *entity.IngestionJob) error {
	msg := &IngestDocumentMessage{JobID: job.ID, SourceKind: string(job.SourceKind)}
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		msg.RequestID = reqID
	}
	_, err := p.PublishIngestJob(ctx, msg)
	return err
}
