package ingestion

import (
	"context"
	"time"

	"recall-api/internal/domain/entity"
	wfmodel "recall-api/internal/workflow/model"
)

// Format 文本提交格式
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// TextSubmission 纯文本或 Markdown 提交
type TextSubmission struct {
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	SourceKind entity.SourceKind `json:"source_kind"`
	Format     Format            `json:"format,omitempty"`
	// Speaker 整篇文本的说话人，可为空
	Speaker   string          `json:"speaker,omitempty"`
	OriginRef string          `json:"origin_ref,omitempty"`
	Metadata  entity.Metadata `json:"metadata,omitempty"`
}

// TranscriptSegment 转写片段
type TranscriptSegment struct {
	Start   *float64 `json:"start,omitempty"`
	End     *float64 `json:"end,omitempty"`
	Speaker string   `json:"speaker,omitempty"`
	Text    string   `json:"text"`
}

// TranscriptSubmission 带时间与说话人的转写提交
type TranscriptSubmission struct {
	Title      string              `json:"title"`
	SourceKind entity.SourceKind   `json:"source_kind"`
	OriginRef  string              `json:"origin_ref,omitempty"`
	Segments   []TranscriptSegment `json:"segments"`
	Metadata   entity.Metadata     `json:"metadata,omitempty"`
}

// jobInput 保存在任务行中的提交内容
type jobInput struct {
	Text       *TextSubmission       `json:"text,omitempty"`
	Transcript *TranscriptSubmission `json:"transcript,omitempty"`
}

// Result 单次摄取结果
type Result struct {
	DocumentID string        `json:"document_id"`
	ChunkCount int           `json:"chunk_count"`
	Summarized bool          `json:"summarized"`
	Duration   time.Duration `json:"duration"`
}

// JobStore 任务持久化
type JobStore interface {
	Create(ctx context.Context, job *entity.IngestionJob) error
	GetByID(ctx context.Context, id string) (*entity.IngestionJob, error)
	Update(ctx context.Context, job *entity.IngestionJob) error
}

// Queue 任务投递
type Queue interface {
	Enqueue(ctx context.Context, job *entity.IngestionJob) error
}

// Writer 文档原子写入
type Writer interface {
	Write(ctx context.Context, doc *entity.Document, chunks []*entity.Chunk) error
	AttachSummary(ctx context.Context, doc *entity.Document, summary string, embedding []float32) error
}

// Summarizer 文档摘要生成
type Summarizer interface {
	Summarize(ctx context.Context, in *wfmodel.SummaryInput) (string, error)
}

// ResultCallback 任务结束回调；err 非空表示失败
type ResultCallback func(ctx context.Context, job *entity.IngestionJob, result *Result, err error)
