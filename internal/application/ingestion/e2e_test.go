package ingestion

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall-api/internal/application/chunking"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
)

// 内存版存储，写入走 retrieval.Indexer，读取走 retrieval.Engine

type memTx struct{}

func (memTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memDocs struct {
	mu   sync.Mutex
	docs map[string]*entity.Document
}

func (m *memDocs) Create(_ context.Context, doc *entity.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *memDocs) UpdateSummary(context.Context, string, string, []float32) error { return nil }

func (m *memDocs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memDocs) GetByID(_ context.Context, id string) (*entity.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id], nil
}

func (m *memDocs) GetByIDs(_ context.Context, ids []string) ([]*entity.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := m.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

type memChunks struct {
	mu     sync.Mutex
	chunks []*entity.Chunk
	tokens map[string]*entity.TokenEmbeddings
}

func (m *memChunks) CreateBatch(_ context.Context, chunks []*entity.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memChunks) SaveTokenEmbeddings(_ context.Context, rows []*entity.ChunkTokenEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tokens[r.ChunkID] = r.Embeddings
	}
	return nil
}

func (m *memChunks) DeleteByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

func (m *memChunks) GetByIDs(_ context.Context, ids []string) ([]*entity.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []*entity.Chunk
	for _, c := range m.chunks {
		if _, ok := want[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memChunks) GetNeighbors(_ context.Context, documentID string, ordinal int) (*entity.Chunk, *entity.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var prev, next *entity.Chunk
	for _, c := range m.chunks {
		if c.DocumentID != documentID || c.Tier != entity.TierDetail {
			continue
		}
		if c.Ordinal < ordinal && (prev == nil || c.Ordinal > prev.Ordinal) {
			prev = c
		}
		if c.Ordinal > ordinal && (next == nil || c.Ordinal < next.Ordinal) {
			next = c
		}
	}
	return prev, next, nil
}

func (m *memChunks) LexicalSearch(_ context.Context, query string, limit int, filter *repository.ChunkFilter) ([]repository.LexicalHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	terms := strings.Fields(strings.ToLower(query))
	var hits []repository.LexicalHit
	for _, c := range m.chunks {
		if filter != nil && filter.Speaker != "" && !strings.EqualFold(c.SpeakerName(), filter.Speaker) {
			continue
		}
		content := strings.ToLower(c.Content)
		rank := 0
		for _, t := range terms {
			rank += strings.Count(content, t)
		}
		if rank > 0 {
			hits = append(hits, repository.LexicalHit{ChunkID: c.ID, Rank: float64(rank)})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Rank > hits[j].Rank })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memChunks) FindBySpeaker(_ context.Context, name string, limit int) ([]*entity.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Chunk
	for _, c := range m.chunks {
		if c.Tier == entity.TierDetail && strings.EqualFold(c.SpeakerName(), name) {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memChunks) FindCreatedBetween(context.Context, time.Time, time.Time, int, int) ([]*entity.Chunk, error) {
	return nil, nil
}

func (m *memChunks) GetTokenEmbeddings(_ context.Context, ids []string) (map[string]*entity.TokenEmbeddings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*entity.TokenEmbeddings, len(ids))
	for _, id := range ids {
		if te, ok := m.tokens[id]; ok {
			out[id] = te
		}
	}
	return out, nil
}

func (m *memChunks) details(documentID string) []*entity.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Chunk
	for _, c := range m.chunks {
		if c.DocumentID == documentID && c.Tier == entity.TierDetail {
			out = append(out, c)
		}
	}
	return out
}

type memVector struct {
	mu   sync.Mutex
	rows []*retrieval.VectorChunk
}

func (m *memVector) EnsureCollections(context.Context) error { return nil }

func (m *memVector) InsertChunks(_ context.Context, rows []*retrieval.VectorChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memVector) SearchChunks(_ context.Context, p *retrieval.VectorSearchParams) ([]*retrieval.VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []*retrieval.VectorHit
	for _, r := range m.rows {
		if p.Filter != nil && p.Filter.Speaker != "" && !strings.EqualFold(r.Speaker, p.Filter.Speaker) {
			continue
		}
		hits = append(hits, &retrieval.VectorHit{ChunkID: r.ChunkID, DocumentID: r.DocumentID, Score: cosine(p.QueryVector, r.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > p.TopK {
		hits = hits[:p.TopK]
	}
	return hits, nil
}

func (m *memVector) DeleteByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.DocumentID != documentID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

func (m *memVector) UpsertSummary(context.Context, *retrieval.VectorSummary) error { return nil }

func (m *memVector) SearchSummaries(context.Context, []float32, int, string) ([]*retrieval.VectorHit, error) {
	return nil, nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

type searchStack struct {
	svc    *Service
	jobs   *fakeJobs
	chunks *memChunks
	engine *retrieval.Engine
}

func newSearchStack(t *testing.T) *searchStack {
	t.Helper()
	docs := &memDocs{docs: make(map[string]*entity.Document)}
	chunks := &memChunks{tokens: make(map[string]*entity.TokenEmbeddings)}
	vec := &memVector{}
	emb := &fakeEmbedder{}
	jobs := newFakeJobs()

	indexer := retrieval.NewIndexer(memTx{}, docs, chunks, vec)
	svc, err := NewService(jobs, &fakeQueue{}, chunking.New(chunking.DefaultConfig()), emb, indexer,
		&fakeSummarizer{text: "Zusammenfassung."}, Options{})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return &searchStack{
		svc:    svc,
		jobs:   jobs,
		chunks: chunks,
		engine: retrieval.NewEngine(emb, vec, chunks, docs, retrieval.Options{}),
	}
}

func (s *searchStack) ingest(t *testing.T, sub TextSubmission) string {
	t.Helper()
	id, err := s.svc.SubmitText(context.Background(), sub)
	require.NoError(t, err)
	require.NoError(t, s.svc.Handle(context.Background(), id))
	job := s.jobs.get(t, id)
	require.Equal(t, entity.JobStatusCompleted, job.Status)
	require.NotEmpty(t, job.DocumentID)
	return job.DocumentID
}

func robotText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		b.WriteString("Das Budget für die Roboter im Lager wurde erhöht. ")
	}
	return strings.TrimSpace(b.String())
}

func TestIngestThenSearch_SpeakerText(t *testing.T) {
	s := newSearchStack(t)
	ctx := context.Background()

	content := longText(40)
	require.GreaterOrEqual(t, len([]rune(content)), 3000)
	docA := s.ingest(t, TextSubmission{Title: "Memo A", Content: content, SourceKind: entity.SourceKindAudio, Speaker: "A"})
	docB := s.ingest(t, TextSubmission{Title: "Memo B", Content: robotText(10), SourceKind: entity.SourceKindText, Speaker: "B"})

	details := s.chunks.details(docA)
	require.NotEmpty(t, details)
	for _, c := range details {
		assert.Equal(t, "A", c.SpeakerName())
	}

	t.Run("speaker with query", func(t *testing.T) {
		out, err := s.engine.SearchBySpeaker(ctx, "a", "Pflegekräfte Agentur", 5, false)
		require.NoError(t, err)
		require.NotEmpty(t, out.Results)
		for _, r := range out.Results {
			assert.Equal(t, "A", r.Chunk.SpeakerName())
			assert.Equal(t, docA, r.DocumentID())
			assert.Equal(t, "Memo A", r.DocumentTitle)
			assert.Equal(t, entity.SourceKindAudio, r.SourceKind)
			assert.False(t, r.DocumentDate.IsZero())
		}
	})

	t.Run("speaker without query", func(t *testing.T) {
		out, err := s.engine.SearchBySpeaker(ctx, "B", "", 5, false)
		require.NoError(t, err)
		require.NotEmpty(t, out.Results)
		for _, r := range out.Results {
			assert.Equal(t, "B", r.Chunk.SpeakerName())
			assert.Equal(t, docB, r.DocumentID())
			assert.Equal(t, "Memo B", r.DocumentTitle)
			assert.Equal(t, entity.SourceKindText, r.SourceKind)
		}
	})

	t.Run("unscoped search ranks lexical match first", func(t *testing.T) {
		out, err := s.engine.Search(ctx, retrieval.SearchInput{Query: "roboter", TopK: 3})
		require.NoError(t, err)
		require.NotEmpty(t, out.Results)
		top := out.Results[0]
		assert.Equal(t, docB, top.DocumentID())
		assert.Equal(t, "Memo B", top.DocumentTitle)
	})
}

func TestIngestThenSearch_LongSpeakerTextStaysWithinDetailLimit(t *testing.T) {
	s := newSearchStack(t)
	limit := chunking.DefaultConfig().DetailMaxTokens

	content := longText(280)
	require.Greater(t, chunking.EstimateTokens(content), 4*limit)
	docA := s.ingest(t, TextSubmission{Title: "Langes Memo", Content: content, SourceKind: entity.SourceKindAudio, Speaker: "A"})

	details := s.chunks.details(docA)
	require.Greater(t, len(details), 1)
	for _, c := range details {
		assert.Equal(t, "A", c.SpeakerName())
		assert.LessOrEqual(t, c.TokenCount, limit)
		assert.LessOrEqual(t, chunking.EstimateTokens(c.Content), limit)
	}

	out, err := s.engine.SearchBySpeaker(context.Background(), "A", "Agentur", 10, false)
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.LessOrEqual(t, len(out.Results), 10)
	for _, r := range out.Results {
		assert.Equal(t, "A", r.Chunk.SpeakerName())
		assert.Equal(t, "Langes Memo", r.DocumentTitle)
	}
}
