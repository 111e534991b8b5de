package answer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"recall-api/internal/application/fuzzy"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/application/routing"
	"recall-api/internal/domain/entity"
	wfmodel "recall-api/internal/workflow/model"
	apperrors "recall-api/pkg/errors"
)

type fakeGenerator struct {
	mu        sync.Mutex
	served    map[string]bool
	grounded  string
	knowledge string
	errs      map[wfmodel.AnswerMode]error
	calls     []wfmodel.AnswerInput
}

func newFakeGenerator(models ...string) *fakeGenerator {
	served := map[string]bool{"gpt-4o-mini": true, "gpt-4.1": true, "o3": true}
	for _, m := range models {
		served[m] = true
	}
	return &fakeGenerator{
		served:    served,
		grounded:  "Nina nannte für die Pflegekräfte einen Preis von 45 Euro pro Stunde.",
		knowledge: "Allgemein liegen Preise für Pflegekräfte zwischen 35 und 60 Euro.",
		errs:      map[wfmodel.AnswerMode]error{},
	}
}

func (g *fakeGenerator) record(in *wfmodel.AnswerInput) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, *in)
	if !g.served[in.Model] {
		return "", apperrors.ErrModelUnsupported.WithDetail(in.Model)
	}
	if err := g.errs[in.Mode]; err != nil {
		return "", err
	}
	if in.Mode == wfmodel.AnswerKnowledge {
		return g.knowledge, nil
	}
	return g.grounded, nil
}

func (g *fakeGenerator) Invoke(_ context.Context, in *wfmodel.AnswerInput) (*schema.Message, error) {
	text, err := g.record(in)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

func (g *fakeGenerator) Stream(_ context.Context, in *wfmodel.AnswerInput) (*schema.StreamReader[*schema.Message], error) {
	text, err := g.record(in)
	if err != nil {
		return nil, err
	}
	var msgs []*schema.Message
	for _, w := range strings.SplitAfter(text, " ") {
		msgs = append(msgs, schema.AssistantMessage(w, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (g *fakeGenerator) modes() []wfmodel.AnswerMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]wfmodel.AnswerMode, 0, len(g.calls))
	for _, c := range g.calls {
		out = append(out, c.Mode)
	}
	return out
}

func (g *fakeGenerator) last() wfmodel.AnswerInput {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[len(g.calls)-1]
}

type fakeJudge struct {
	mu    sync.Mutex
	score float64
	err   error
	calls int
}

func (j *fakeJudge) Score(_ context.Context, _ *wfmodel.JudgeInput) (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	return j.score, j.err
}

type fakeRouter struct {
	outcome *routing.Outcome
	err     error
	block   bool
}

func (r *fakeRouter) Route(ctx context.Context, _ string, _ []entity.Turn) (*routing.Outcome, error) {
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.outcome, r.err
}

type fakeSearch struct {
	plain     []*entity.RetrievalResult
	reranked  []*entity.RetrievalResult
	err       error
	rerankErr error
}

func (s *fakeSearch) Search(_ context.Context, in retrieval.SearchInput) (*retrieval.SearchOutput, error) {
	if in.Rerank {
		if s.rerankErr != nil {
			return nil, s.rerankErr
		}
		return &retrieval.SearchOutput{Results: s.reranked}, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return &retrieval.SearchOutput{Results: s.plain}, nil
}

type fakeFuzzy struct {
	docs []fuzzy.ScoredDocument
	err  error
}

func (f *fakeFuzzy) FuzzySearchDocuments(_ context.Context, _ string, _ float64) ([]fuzzy.ScoredDocument, error) {
	return f.docs, f.err
}

type fakeChunks struct {
	byDoc map[string][]*entity.Chunk
}

func (f *fakeChunks) ListByDocument(_ context.Context, id string, _ []entity.Tier, limit int) ([]*entity.Chunk, error) {
	out := f.byDoc[id]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeInsights struct {
	insight *entity.CrossContextInsight
	err     error
	primary int
}

func (f *fakeInsights) FindInsights(_ context.Context, _ string, primary []*entity.RetrievalResult, _ []entity.Turn) (*entity.CrossContextInsight, error) {
	f.primary = len(primary)
	return f.insight, f.err
}

type memStore struct {
	mu      sync.Mutex
	data    map[string]entity.ConversationIntent
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]entity.ConversationIntent)}
}

func (m *memStore) Load(_ context.Context, id string) (*entity.ConversationIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	in.Attempts = append([]entity.SearchAttempt(nil), in.Attempts...)
	in.Entities = append([]string(nil), in.Entities...)
	return &in, nil
}

func (m *memStore) Save(_ context.Context, in *entity.ConversationIntent, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[in.SessionID] = *in
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func result(title, content string, score float64) *entity.RetrievalResult {
	return &entity.RetrievalResult{
		Chunk:         &entity.Chunk{ID: title + "-" + content[:min(8, len(content))], Tier: entity.TierDetail, Content: content},
		DocumentTitle: title,
		SourceKind:    entity.SourceKindText,
		DocumentDate:  time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Score:         score,
	}
}

var testTiers = ModelTiers{Default: "gpt-4o-mini", LargeContext: "gpt-4.1", DeepReasoning: "o3"}
