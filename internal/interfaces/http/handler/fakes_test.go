package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"recall-api/internal/application/answer"
	"recall-api/internal/application/ingestion"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnswerer struct {
	resp    *answer.Response
	err     error
	events  []answer.Event
	lastReq answer.Request
	tiers   answer.ModelTiers
}

func (f *fakeAnswerer) Ask(_ context.Context, req answer.Request) (*answer.Response, error) {
	f.lastReq = req
	return f.resp, f.err
}

func (f *fakeAnswerer) Stream(_ context.Context, req answer.Request, emit func(answer.Event) error) (*answer.Response, error) {
	f.lastReq = req
	for _, ev := range f.events {
		if err := emit(ev); err != nil {
			return nil, err
		}
	}
	return f.resp, f.err
}

func (f *fakeAnswerer) Tiers() answer.ModelTiers { return f.tiers }

type fakeCatalog []string

func (f fakeCatalog) Served() []string { return f }

type fakeEngine struct {
	out     *retrieval.SearchOutput
	err     error
	similar []retrieval.SimilarDocument

	lastInput   retrieval.SearchInput
	lastSpeaker string
	lastStart   time.Time
	lastEnd     time.Time
	lastQuery   string
	lastTopK    int
}

func (f *fakeEngine) Search(_ context.Context, in retrieval.SearchInput) (*retrieval.SearchOutput, error) {
	f.lastInput = in
	f.lastQuery = in.Query
	f.lastTopK = in.TopK
	return f.out, f.err
}

func (f *fakeEngine) SearchBySpeaker(_ context.Context, speaker, query string, topK int, _ bool) (*retrieval.SearchOutput, error) {
	f.lastSpeaker = speaker
	f.lastQuery = query
	f.lastTopK = topK
	return f.out, f.err
}

func (f *fakeEngine) SearchByDateRange(_ context.Context, start, end time.Time, query string, topK int, _ bool) (*retrieval.SearchOutput, error) {
	f.lastStart, f.lastEnd = start, end
	f.lastQuery = query
	f.lastTopK = topK
	return f.out, f.err
}

func (f *fakeEngine) SimilarDocuments(_ context.Context, _ string, topK int) ([]retrieval.SimilarDocument, error) {
	f.lastTopK = topK
	return f.similar, f.err
}

type fakeIngestor struct {
	jobID    string
	err      error
	text     ingestion.TextSubmission
	segments ingestion.TranscriptSubmission
	quick    [2]string
}

func (f *fakeIngestor) SubmitText(_ context.Context, in ingestion.TextSubmission) (string, error) {
	f.text = in
	return f.jobID, f.err
}

func (f *fakeIngestor) SubmitTranscript(_ context.Context, in ingestion.TranscriptSubmission) (string, error) {
	f.segments = in
	return f.jobID, f.err
}

func (f *fakeIngestor) SubmitQuick(_ context.Context, content, source string) (string, error) {
	f.quick = [2]string{content, source}
	return f.jobID, f.err
}

type fakeJobs struct {
	jobs       map[string]*entity.IngestionJob
	lastStatus entity.JobStatus
}

func (f *fakeJobs) GetByID(_ context.Context, id string) (*entity.IngestionJob, error) {
	return f.jobs[id], nil
}

func (f *fakeJobs) ListRecent(_ context.Context, status entity.JobStatus, p repository.Pagination) (*repository.PagedResult[*entity.IngestionJob], error) {
	f.lastStatus = status
	items := make([]*entity.IngestionJob, 0, len(f.jobs))
	for _, j := range f.jobs {
		items = append(items, j)
	}
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

type fakeDocs struct {
	docs       map[string]*entity.Document
	speakers   map[string][]string
	lastFilter *repository.DocumentFilter
}

func (f *fakeDocs) GetByID(_ context.Context, id string) (*entity.Document, error) {
	return f.docs[id], nil
}

func (f *fakeDocs) List(_ context.Context, filter *repository.DocumentFilter, p repository.Pagination) (*repository.PagedResult[*entity.Document], error) {
	f.lastFilter = filter
	items := make([]*entity.Document, 0, len(f.docs))
	for _, d := range f.docs {
		items = append(items, d)
	}
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (f *fakeDocs) ListSpeakers(_ context.Context, _ []string) (map[string][]string, error) {
	return f.speakers, nil
}

type fakeRemover struct {
	deleted []string
}

func (f *fakeRemover) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeRelations struct {
	rels []entity.DocumentRelationship
}

func (f *fakeRelations) Relationships(_ context.Context, _ []string) ([]entity.DocumentRelationship, error) {
	return f.rels, nil
}

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

var errDown = errors.New("connection refused")
