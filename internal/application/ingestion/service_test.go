package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall-api/internal/application/chunking"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
	wfmodel "recall-api/internal/workflow/model"
	apperrors "recall-api/pkg/errors"
)

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]entity.IngestionJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]entity.IngestionJob)}
}

func (f *fakeJobs) Create(_ context.Context, job *entity.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = *job
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, id string) (*entity.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (f *fakeJobs) Update(_ context.Context, job *entity.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = *job
	return nil
}

func (f *fakeJobs) get(t *testing.T, id string) entity.IngestionJob {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	require.True(t, ok)
	return job
}

type fakeQueue struct {
	ids []string
	err error
}

func (q *fakeQueue) Enqueue(_ context.Context, job *entity.IngestionJob) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, job.ID)
	return nil
}

type fakeEmbedder struct {
	mu        sync.Mutex
	batchErr  error
	tokenErr  error
	batches   int
	tokenCall int
	embedded  []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedded = append(f.embedded, text)
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedTokens(_ context.Context, text string) (*entity.TokenEmbeddings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCall++
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	return &entity.TokenEmbeddings{Vectors: [][]float32{{1, 0}}, Tokens: []string{text[:1]}}, nil
}

type fakeWriter struct {
	mu         sync.Mutex
	err        error
	docs       []*entity.Document
	chunks     [][]*entity.Chunk
	summary    string
	summaryVec []float32
}

func (f *fakeWriter) Write(_ context.Context, doc *entity.Document, chunks []*entity.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	f.chunks = append(f.chunks, chunks)
	return nil
}

func (f *fakeWriter) AttachSummary(_ context.Context, doc *entity.Document, summary string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary = summary
	f.summaryVec = embedding
	doc.SetSummary(summary, embedding)
	return nil
}

type fakeSummarizer struct {
	text  string
	err   error
	calls []wfmodel.SummaryInput
}

func (f *fakeSummarizer) Summarize(_ context.Context, in *wfmodel.SummaryInput) (string, error) {
	f.calls = append(f.calls, *in)
	return f.text, f.err
}

type fixture struct {
	svc        *Service
	jobs       *fakeJobs
	queue      *fakeQueue
	embedder   *fakeEmbedder
	writer     *fakeWriter
	summarizer *fakeSummarizer
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		jobs:       newFakeJobs(),
		queue:      &fakeQueue{},
		embedder:   &fakeEmbedder{},
		writer:     &fakeWriter{},
		summarizer: &fakeSummarizer{text: "Zusammenfassung: Pflegepreise besprochen."},
	}
	chunker := chunking.New(chunking.Config{DetailTargetTokens: 40, DetailMaxTokens: 60, OverlapTokens: 5})
	svc, err := NewService(f.jobs, f.queue, chunker, f.embedder, f.writer, f.summarizer, opts)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

func longText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		b.WriteString("Wir haben heute über die Preise für Pflegekräfte in der Agentur gesprochen. ")
	}
	return strings.TrimSpace(b.String())
}

func TestSubmitText_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.SubmitText(ctx, TextSubmission{Title: "Leer", Content: "   "})
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)

	_, err = f.svc.SubmitText(ctx, TextSubmission{Title: "", Content: "Inhalt"})
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)

	_, err = f.svc.SubmitText(ctx, TextSubmission{Title: "X", Content: "Inhalt", SourceKind: "pdf"})
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)

	_, err = f.svc.SubmitText(ctx, TextSubmission{Title: "X", Content: "Inhalt", Format: "html"})
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)

	_, err = f.svc.SubmitTranscript(ctx, TranscriptSubmission{Title: "X", Segments: []TranscriptSegment{{Text: " "}}})
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)

	assert.Empty(t, f.jobs.jobs)
	assert.Empty(t, f.queue.ids)
}

func TestSubmitText_CreatesPendingJob(t *testing.T) {
	f := newFixture(t, Options{})

	id, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Notiz", Content: "Kurzer Inhalt."})
	require.NoError(t, err)

	job := f.jobs.get(t, id)
	assert.Equal(t, entity.JobStatusPending, job.Status)
	assert.Equal(t, entity.SourceKindText, job.SourceKind)
	assert.Equal(t, "Notiz", job.Title)
	assert.Equal(t, []string{id}, f.queue.ids)
	assert.Contains(t, string(job.Input), "Kurzer Inhalt.")
}

func TestSubmitQuick(t *testing.T) {
	f := newFixture(t, Options{})

	id, err := f.svc.SubmitQuick(context.Background(), "Milch kaufen", "siri")
	require.NoError(t, err)
	job := f.jobs.get(t, id)
	assert.Equal(t, "Quick note - 2026-03-04 09:30", job.Title)

	require.NoError(t, f.svc.Handle(context.Background(), id))
	require.Len(t, f.writer.docs, 1)
	doc := f.writer.docs[0]
	assert.Equal(t, true, doc.Metadata["quick_capture"])
	assert.Equal(t, "siri", doc.Metadata.String("source"))
}

func TestSubmit_EnqueueFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t, Options{})
	f.queue.err = errors.New("redis down")

	_, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Notiz", Content: "Inhalt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)

	require.Len(t, f.jobs.jobs, 1)
	for _, job := range f.jobs.jobs {
		assert.Equal(t, entity.JobStatusFailed, job.Status)
		assert.Contains(t, job.ErrorMessage, "redis down")
	}
}

func TestHandle_SpeakerText(t *testing.T) {
	f := newFixture(t, Options{})
	var results []*Result
	f.svc.OnResult(func(_ context.Context, _ *entity.IngestionJob, res *Result, err error) {
		require.NoError(t, err)
		results = append(results, res)
	})

	id, err := f.svc.SubmitText(context.Background(), TextSubmission{
		Title:      "Memo A",
		Content:    longText(12),
		SourceKind: entity.SourceKindAudio,
		Speaker:    "A",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Handle(context.Background(), id))

	require.Len(t, f.writer.docs, 1)
	doc, chunks := f.writer.docs[0], f.writer.chunks[0]
	assert.Equal(t, "A", doc.Metadata.String("speaker"))
	assert.Equal(t, entity.SourceKindAudio, doc.SourceKind)
	assert.NotEmpty(t, doc.ContentHash)

	details := 0
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.Embedding)
		if c.Tier == entity.TierDetail {
			details++
			assert.Equal(t, "A", c.SpeakerName())
		}
	}
	assert.Positive(t, details)

	job := f.jobs.get(t, id)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, doc.ID, job.DocumentID)
	assert.Equal(t, len(chunks), job.ChunkCount)
	require.Len(t, results, 1)
	assert.Equal(t, doc.ID, results[0].DocumentID)
}

func TestHandle_DuplicateDeliverySkipped(t *testing.T) {
	f := newFixture(t, Options{})
	id, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Notiz", Content: "Ein Satz."})
	require.NoError(t, err)

	require.NoError(t, f.svc.Handle(context.Background(), id))
	require.NoError(t, f.svc.Handle(context.Background(), id))
	assert.Len(t, f.writer.docs, 1)
}

func TestHandle_UnknownJobDropped(t *testing.T) {
	f := newFixture(t, Options{})
	assert.NoError(t, f.svc.Handle(context.Background(), "missing"))
	assert.Empty(t, f.writer.docs)
}

func TestHandle_MarkdownNormalised(t *testing.T) {
	f := newFixture(t, Options{})
	id, err := f.svc.SubmitText(context.Background(), TextSubmission{
		Title:   "Plan",
		Content: "# Roboter\n\nDer **Greifarm** ist [fertig](https://example.com).\n\n- Test\n- Demo",
		Format:  FormatMarkdown,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Handle(context.Background(), id))

	content := f.writer.docs[0].Content
	assert.NotContains(t, content, "#")
	assert.NotContains(t, content, "**")
	assert.NotContains(t, content, "https://")
	assert.Contains(t, content, "Der Greifarm ist fertig.")
}

func TestHandle_TimestampedTextUsesTimeTopics(t *testing.T) {
	f := newFixture(t, Options{})
	id, err := f.svc.SubmitText(context.Background(), TextSubmission{
		Title:   "Call",
		Content: "[00:00:05] Begrüßung und Agenda. [00:12:30] Preise für Pflegekräfte. [00:25:00] Nächste Schritte.",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Handle(context.Background(), id))

	var topics []*entity.Chunk
	for _, c := range f.writer.chunks[0] {
		if c.Tier == entity.TierTopic {
			topics = append(topics, c)
		}
		if c.Tier == entity.TierDetail {
			assert.NotContains(t, c.Content, "[00:")
		}
	}
	require.Len(t, topics, 3)
	require.NotNil(t, topics[1].StartTime)
	assert.InDelta(t, 750.0, *topics[1].StartTime, 1e-9)
	assert.Equal(t, "Preise für Pflegekräfte.", topics[1].Content)
}

func TestHandle_Transcript(t *testing.T) {
	f := newFixture(t, Options{})
	start := func(s float64) *float64 { return &s }
	id, err := f.svc.SubmitTranscript(context.Background(), TranscriptSubmission{
		Title: "Pflege Meeting",
		Segments: []TranscriptSegment{
			{Start: start(0), Speaker: "Nina", Text: "Wir rechnen 45 Euro pro Stunde."},
			{Start: start(20), Speaker: "Max", Text: "Das klingt fair."},
			{Start: start(40), Speaker: "Nina", Text: "Nachtschichten kosten extra."},
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Handle(context.Background(), id))

	doc := f.writer.docs[0]
	assert.Equal(t, entity.SourceKindAudio, doc.SourceKind)
	assert.Equal(t, "Nina: Wir rechnen 45 Euro pro Stunde.\nMax: Das klingt fair.\nNina: Nachtschichten kosten extra.", doc.Content)

	var speakers []string
	for _, c := range f.writer.chunks[0] {
		if c.Tier == entity.TierDetail {
			speakers = append(speakers, c.SpeakerName())
		}
	}
	assert.Equal(t, []string{"Nina", "Max", "Nina"}, speakers)
}

func TestHandle_EmbeddingFailureFailsJobAndRetries(t *testing.T) {
	f := newFixture(t, Options{})
	f.embedder.batchErr = errors.New("embedding service down")

	id, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Notiz", Content: longText(3)})
	require.NoError(t, err)

	err = f.svc.Handle(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIngestionFailed)
	assert.Empty(t, f.writer.docs)

	job := f.jobs.get(t, id)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "embedding service down")
	assert.Equal(t, 0, job.RetryCount)

	f.embedder.batchErr = nil
	require.NoError(t, f.svc.Handle(context.Background(), id))
	job = f.jobs.get(t, id)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.RetryCount)
}

func TestHandle_WriteFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.writer.err = errors.New("tx aborted")

	id, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Notiz", Content: "Ein Satz."})
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Handle(context.Background(), id), apperrors.ErrIngestionFailed)
	assert.Equal(t, entity.JobStatusFailed, f.jobs.get(t, id).Status)
}

func TestDeadLetter(t *testing.T) {
	f := newFixture(t, Options{})
	id, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Notiz", Content: "Ein Satz."})
	require.NoError(t, err)

	f.svc.DeadLetter(context.Background(), id, 3, errors.New("boom"))
	job := f.jobs.get(t, id)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Equal(t, 3, job.RetryCount)
	assert.Contains(t, job.ErrorMessage, "giving up after 3 attempts")
}

func TestHandle_TokenEmbeddings(t *testing.T) {
	t.Run("attached to limited detail chunks", func(t *testing.T) {
		f := newFixture(t, Options{TokenEmbeddingChunks: 2})
		id, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Notiz", Content: longText(12)})
		require.NoError(t, err)
		require.NoError(t, f.svc.Handle(context.Background(), id))

		with := 0
		for _, c := range f.writer.chunks[0] {
			if c.HasTokenEmbeddings() {
				assert.Equal(t, entity.TierDetail, c.Tier)
				with++
			}
		}
		assert.Equal(t, 2, with)
	})

	t.Run("unavailable service is skipped", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.embedder.tokenErr = retrieval.ErrTokenEmbeddingsUnavailable
		id, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Notiz", Content: longText(12)})
		require.NoError(t, err)
		require.NoError(t, f.svc.Handle(context.Background(), id))

		assert.Equal(t, 1, f.embedder.tokenCall)
		for _, c := range f.writer.chunks[0] {
			assert.False(t, c.HasTokenEmbeddings())
		}
	})
}

func TestHandle_Summary(t *testing.T) {
	t.Run("short documents are not summarized", func(t *testing.T) {
		f := newFixture(t, Options{})
		id, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Notiz", Content: "Kurz."})
		require.NoError(t, err)
		require.NoError(t, f.svc.Handle(context.Background(), id))
		assert.Empty(t, f.summarizer.calls)
		assert.Empty(t, f.writer.summary)
	})

	t.Run("long documents get an embedded summary", func(t *testing.T) {
		f := newFixture(t, Options{SummaryModel: "gpt-4o-mini"})
		id, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Pflege", Content: longText(20)})
		require.NoError(t, err)
		require.NoError(t, f.svc.Handle(context.Background(), id))

		require.Len(t, f.summarizer.calls, 1)
		assert.Equal(t, "gpt-4o-mini", f.summarizer.calls[0].Model)
		assert.Equal(t, "Pflege", f.summarizer.calls[0].Title)
		assert.Equal(t, f.summarizer.text, f.writer.summary)
		assert.Equal(t, []float32{1, 0}, f.writer.summaryVec)
		assert.True(t, f.writer.docs[0].HasSummary())
	})

	t.Run("generation failure stores excerpt", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.summarizer.err = errors.New("llm down")
		content := longText(20)
		id, err := f.svc.SubmitText(context.Background(), TextSubmission{Title: "Pflege", Content: content})
		require.NoError(t, err)
		require.NoError(t, f.svc.Handle(context.Background(), id))

		assert.Equal(t, SummaryFallback(content), f.writer.summary)
		assert.True(t, strings.HasPrefix(f.writer.summary, "[Summary generation failed] Wir haben heute"))
		assert.True(t, strings.HasSuffix(f.writer.summary, "..."))
		assert.Equal(t, entity.JobStatusCompleted, f.jobs.get(t, id).Status)
	})
}

func TestSummaryFallback(t *testing.T) {
	content := strings.Repeat("ä", 1500)
	out := SummaryFallback(content)
	assert.Equal(t, "[Summary generation failed] "+strings.Repeat("ä", 1000)+"...", out)
}
