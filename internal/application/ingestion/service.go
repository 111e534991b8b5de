// Package ingestion 摄取服务：提交任务入队，工作进程完成规范化、分块、向量化、原子写入与摘要生成
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/trace"

	"recall-api/internal/application/chunking"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
	wfmodel "recall-api/internal/workflow/model"
	"recall-api/pkg/contenthash"
	apperrors "recall-api/pkg/errors"
	"recall-api/pkg/logger"
	"recall-api/pkg/metrics"
	"recall-api/pkg/tracer"
)

const (
	summaryFallbackPrefix = "[Summary generation failed] "
	summaryFallbackRunes  = 1000
)

// Options 摄取参数
type Options struct {
	EmbedBatchSize       int
	TokenEmbeddingChunks int
	SummaryMinRunes      int
	SummaryModel         string
	WorkerPoolSize       int
	EmbedTimeout         time.Duration
	SummaryTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = 32
	}
	if o.TokenEmbeddingChunks < 0 {
		o.TokenEmbeddingChunks = 0
	} else if o.TokenEmbeddingChunks == 0 {
		o.TokenEmbeddingChunks = 20
	}
	if o.SummaryMinRunes <= 0 {
		o.SummaryMinRunes = 1000
	}
	if o.WorkerPoolSize <= 0 {
		o.WorkerPoolSize = 4
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = 60 * time.Second
	}
	if o.SummaryTimeout <= 0 {
		o.SummaryTimeout = 120 * time.Second
	}
	return o
}

// Service 摄取服务
type Service struct {
	jobs       JobStore
	queue      Queue
	chunker    *chunking.Chunker
	embedder   retrieval.Embedder
	writer     Writer
	summarizer Summarizer
	pool       *ants.Pool
	opts       Options

	mu        sync.RWMutex
	callbacks []ResultCallback
	now       func() time.Time
}

// NewService 创建摄取服务；embedder 或 summarizer 为 nil 时跳过对应步骤
func NewService(jobs JobStore, queue Queue, chunker *chunking.Chunker, embedder retrieval.Embedder, writer Writer, summarizer Summarizer, opts Options) (*Service, error) {
	opts = opts.withDefaults()
	pool, err := ants.NewPool(opts.WorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	if chunker == nil {
		chunker = chunking.New(chunking.DefaultConfig())
	}
	return &Service{
		jobs:       jobs,
		queue:      queue,
		chunker:    chunker,
		embedder:   embedder,
		writer:     writer,
		summarizer: summarizer,
		pool:       pool,
		opts:       opts,
		now:        time.Now,
	}, nil
}

// Close 释放向量化协程池
func (s *Service) Close() {
	s.pool.Release()
}

// OnResult 注册任务结束回调
func (s *Service) OnResult(cb ResultCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// SubmitText 提交文本，返回任务 ID
func (s *Service) SubmitText(ctx context.Context, in TextSubmission) (string, error) {
	in.Title = strings.TrimSpace(in.Title)
	if strings.TrimSpace(in.Content) == "" {
		return "", apperrors.MalformedInput("content is empty", nil)
	}
	if in.Title == "" {
		return "", apperrors.MalformedInput("title is empty", nil)
	}
	if in.SourceKind == "" {
		in.SourceKind = entity.SourceKindText
	}
	if !in.SourceKind.Valid() {
		return "", apperrors.MalformedInput("unknown source kind: "+string(in.SourceKind), nil)
	}
	switch in.Format {
	case "":
		in.Format = FormatText
	case FormatText, FormatMarkdown:
	default:
		return "", apperrors.MalformedInput("unknown format: "+string(in.Format), nil)
	}
	return s.submit(ctx, in.SourceKind, in.Title, jobInput{Text: &in})
}

// SubmitTranscript 提交转写，返回任务 ID
func (s *Service) SubmitTranscript(ctx context.Context, in TranscriptSubmission) (string, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return "", apperrors.MalformedInput("title is empty", nil)
	}
	if in.SourceKind == "" {
		in.SourceKind = entity.SourceKindAudio
	}
	if !in.SourceKind.Valid() {
		return "", apperrors.MalformedInput("unknown source kind: "+string(in.SourceKind), nil)
	}
	empty := true
	for _, seg := range in.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			empty = false
			break
		}
	}
	if empty {
		return "", apperrors.MalformedInput("transcript has no text", nil)
	}
	return s.submit(ctx, in.SourceKind, in.Title, jobInput{Transcript: &in})
}

// SubmitQuick 快速记录：标题按时间生成
func (s *Service) SubmitQuick(ctx context.Context, content, source string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperrors.MalformedInput("content is empty", nil)
	}
	md := entity.Metadata{"quick_capture": true}
	if source = strings.TrimSpace(source); source != "" {
		md["source"] = source
	}
	return s.SubmitText(ctx, TextSubmission{
		Title:      "Quick note - " + s.now().Format("2006-01-02 15:04"),
		Content:    content,
		SourceKind: entity.SourceKindText,
		Format:     FormatText,
		Metadata:   md,
	})
}

func (s *Service) submit(ctx context.Context, kind entity.SourceKind, title string, in jobInput) (string, error) {
	ctx, span := tracer.Start(ctx, "ingestion.Service.submit")
	defer span.End()

	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode job input: %w", err)
	}
	job := entity.NewIngestionJob(uuid.NewString(), kind, title, raw)
	if err := s.jobs.Create(ctx, job); err != nil {
		span.RecordError(err)
		return "", apperrors.ErrUpstreamUnavailable.WithError(fmt.Errorf("create job: %w", err))
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		span.RecordError(err)
		job.Fail("enqueue: " + err.Error())
		if uerr := s.jobs.Update(context.WithoutCancel(ctx), job); uerr != nil {
			logger.Error(ctx, "failed to mark job failed", uerr, "job_id", job.ID)
		}
		metrics.IngestionJobsTotal.WithLabelValues(string(kind), "enqueue_failed").Inc()
		return "", apperrors.ErrUpstreamUnavailable.WithError(fmt.Errorf("enqueue job: %w", err))
	}

	metrics.IngestionJobsTotal.WithLabelValues(string(kind), string(entity.JobStatusPending)).Inc()
	logger.Info(ctx, "ingestion job submitted", "job_id", job.ID, "source_kind", kind, "title", title)
	return job.ID, nil
}

// Handle 处理一条摄取任务；已完成的任务直接跳过，失败时返回错误以便队列重投
func (s *Service) Handle(ctx context.Context, jobID string) error {
	ctx = logger.WithContext(ctx, logger.JobIDKey, jobID)
	ctx, span := tracer.Start(ctx, "ingestion.Service.Handle", trace.WithAttributes(tracer.AttrJobID.String(jobID)))
	defer span.End()

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		logger.Warn(ctx, "ingestion job not found, dropping message")
		return nil
	}
	if job.Done() {
		logger.Info(ctx, "duplicate delivery for completed job, skipping", "document_id", job.DocumentID)
		return nil
	}
	if job.Status == entity.JobStatusFailed {
		job.Retry()
	}
	job.Start()
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	res, err := s.ingest(ctx, job)
	if err != nil {
		tracer.Fail(span, err)
	} else if res != nil {
		span.SetAttributes(tracer.AttrDocumentID.String(res.DocumentID))
	}
	s.finish(ctx, job, res, err)
	return err
}

// DeadLetter 重试耗尽后把任务最终标记为失败
func (s *Service) DeadLetter(ctx context.Context, jobID string, attempts int, cause error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil || job == nil || job.Done() {
		return
	}
	job.Fail(fmt.Sprintf("giving up after %d attempts: %v", attempts, cause))
	job.RetryCount = max(job.RetryCount, attempts)
	if err := s.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.Error(ctx, "failed to mark job dead", err, "job_id", jobID)
	}
	metrics.IngestionJobsTotal.WithLabelValues(string(job.SourceKind), "dead_letter").Inc()
}

func (s *Service) finish(ctx context.Context, job *entity.IngestionJob, res *Result, err error) {
	if err != nil {
		job.Fail(err.Error())
		logger.Error(ctx, "ingestion failed", err, "job_id", job.ID, "retry_count", job.RetryCount)
	} else {
		job.Complete(res.DocumentID, res.ChunkCount)
		res.Duration = time.Duration(job.DurationMs) * time.Millisecond
		metrics.IngestionChunks.Observe(float64(res.ChunkCount))
		logger.Info(ctx, "ingestion completed",
			"job_id", job.ID,
			"document_id", res.DocumentID,
			"chunks", res.ChunkCount,
			"summarized", res.Summarized,
			"duration_ms", job.DurationMs,
		)
	}
	metrics.IngestionJobsTotal.WithLabelValues(string(job.SourceKind), string(job.Status)).Inc()
	if uerr := s.jobs.Update(context.WithoutCancel(ctx), job); uerr != nil {
		logger.Error(ctx, "failed to update job", uerr, "job_id", job.ID)
	}

	s.mu.RLock()
	callbacks := append([]ResultCallback(nil), s.callbacks...)
	s.mu.RUnlock()
	for _, cb := range callbacks {
		cb(ctx, job, res, err)
	}
}

func (s *Service) ingest(ctx context.Context, job *entity.IngestionJob) (*Result, error) {
	var in jobInput
	if err := json.Unmarshal(job.Input, &in); err != nil {
		return nil, apperrors.ErrIngestionFailed.WithError(fmt.Errorf("decode job input: %w", err))
	}
	doc, chunkIn, err := s.prepare(job, in)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithContext(ctx, logger.DocumentIDKey, doc.ID)

	chunks := s.chunker.Chunk(chunkIn)
	for _, c := range chunks {
		c.ID = uuid.NewString()
		c.CreatedAt = doc.CreatedAt
	}

	if s.embedder != nil {
		if err := s.embed(ctx, chunks); err != nil {
			return nil, apperrors.ErrIngestionFailed.WithError(fmt.Errorf("embed chunks: %w", err))
		}
		s.attachTokenEmbeddings(ctx, chunks)
	}

	if err := s.writer.Write(ctx, doc, chunks); err != nil {
		return nil, apperrors.ErrIngestionFailed.WithError(err)
	}

	return &Result{
		DocumentID: doc.ID,
		ChunkCount: len(chunks),
		Summarized: s.summarize(ctx, doc),
	}, nil
}

// prepare 由提交内容构造文档与分块输入
func (s *Service) prepare(job *entity.IngestionJob, in jobInput) (*entity.Document, chunking.Input, error) {
	var (
		content   string
		originRef string
		md        = entity.Metadata{}
		chunkIn   chunking.Input
	)

	switch {
	case in.Text != nil:
		t := in.Text
		content = strings.TrimSpace(t.Content)
		if t.Format == FormatMarkdown {
			content = MarkdownToText(content)
		}
		originRef = t.OriginRef
		for k, v := range t.Metadata {
			md[k] = v
		}
		chunkIn.Text = content
		switch timed := chunking.ExtractTimestamps(content); {
		case t.Speaker != "":
			md["speaker"] = t.Speaker
			chunkIn.Speakers = []chunking.Segment{{Speaker: t.Speaker, Text: content}}
		case timed != nil:
			chunkIn.Timed = timed
			chunkIn.Text = chunking.StripTimestamps(content)
		}
	case in.Transcript != nil:
		t := in.Transcript
		originRef = t.OriginRef
		for k, v := range t.Metadata {
			md[k] = v
		}
		lines := make([]string, 0, len(t.Segments))
		segs := make([]chunking.Segment, 0, len(t.Segments))
		timed, spoken := false, false
		for _, seg := range t.Segments {
			body := strings.TrimSpace(seg.Text)
			if body == "" {
				continue
			}
			line := body
			if seg.Speaker != "" {
				line = seg.Speaker + ": " + body
				spoken = true
			}
			timed = timed || seg.Start != nil
			lines = append(lines, line)
			segs = append(segs, chunking.Segment{Start: seg.Start, End: seg.End, Speaker: seg.Speaker, Text: body})
		}
		content = strings.Join(lines, "\n")
		chunkIn.Text = content
		if timed {
			chunkIn.Timed = segs
		}
		if spoken {
			chunkIn.Speakers = segs
		}
	default:
		return nil, chunkIn, apperrors.ErrIngestionFailed.WithDetail("job input is empty")
	}

	if content == "" {
		return nil, chunkIn, apperrors.ErrIngestionFailed.WithDetail("content is empty after normalisation")
	}

	doc := entity.NewDocument(uuid.NewString(), job.Title, job.SourceKind, content)
	doc.OriginRef = originRef
	doc.ContentHash = contenthash.Of(content)
	doc.Metadata = md
	doc.CreatedAt = s.now()
	if len(md) > 0 {
		chunkIn.Metadata = md
	}
	return doc, chunkIn, nil
}

// embed 按批并发向量化，批次在协程池中执行
func (s *Service) embed(ctx context.Context, chunks []*entity.Chunk) error {
	ctx, span := tracer.Start(ctx, "ingestion.Service.embed")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	size := s.opts.EmbedBatchSize
	for start := 0; start < len(chunks); start += size {
		batch := chunks[start:min(start+size, len(chunks))]
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			vecs, err := s.embedder.EmbedBatch(ctx, texts)
			if err == nil && len(vecs) != len(batch) {
				err = fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(batch))
			}
			if err != nil {
				fail(err)
				return
			}
			for i, c := range batch {
				c.Embedding = vecs[i]
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		span.RecordError(firstErr)
	}
	return firstErr
}

// attachTokenEmbeddings 为前 N 个细节片段附加词元级向量；服务不可用时跳过
func (s *Service) attachTokenEmbeddings(ctx context.Context, chunks []*entity.Chunk) {
	if s.opts.TokenEmbeddingChunks == 0 {
		return
	}
	done := 0
	for _, c := range chunks {
		if done == s.opts.TokenEmbeddingChunks {
			return
		}
		if c.Tier != entity.TierDetail {
			continue
		}
		te, err := s.embedder.EmbedTokens(ctx, c.Content)
		if errors.Is(err, retrieval.ErrTokenEmbeddingsUnavailable) {
			logger.Debug(ctx, "token embeddings unavailable, skipping")
			return
		}
		if err != nil {
			logger.Warn(ctx, "token embedding failed, skipping remaining chunks", "error", err)
			metrics.DegradedBranchTotal.WithLabelValues("ingest_token_embeddings", "error").Inc()
			return
		}
		c.TokenEmbeddings = te
		done++
	}
}

// summarize 长文档生成摘要；生成失败时使用截断原文，摘要写入失败只记录告警
func (s *Service) summarize(ctx context.Context, doc *entity.Document) bool {
	if s.summarizer == nil || utf8.RuneCountInString(doc.Content) <= s.opts.SummaryMinRunes {
		return false
	}
	ctx, span := tracer.Start(ctx, "ingestion.Service.summarize")
	defer span.End()

	sctx, cancel := context.WithTimeout(ctx, s.opts.SummaryTimeout)
	summary, err := s.summarizer.Summarize(sctx, &wfmodel.SummaryInput{
		Model:   s.opts.SummaryModel,
		Title:   doc.Title,
		Content: doc.Content,
	})
	cancel()
	if err != nil {
		logger.Warn(ctx, "summary generation failed, using excerpt", "error", err)
		metrics.DegradedBranchTotal.WithLabelValues("ingest_summary", "error").Inc()
		summary = SummaryFallback(doc.Content)
	}

	var embedding []float32
	if s.embedder != nil {
		if embedding, err = s.embedder.Embed(ctx, summary); err != nil {
			logger.Warn(ctx, "summary embedding failed", "error", err)
			embedding = nil
		}
	}
	if err := s.writer.AttachSummary(ctx, doc, summary, embedding); err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "failed to store summary", "error", err)
		return false
	}
	return true
}

// SummaryFallback 摘要生成失败时的替代文本
func SummaryFallback(content string) string {
	r := []rune(strings.TrimSpace(content))
	if len(r) > summaryFallbackRunes {
		r = r[:summaryFallbackRunes]
	}
	return summaryFallbackPrefix + string(r) + "..."
}
