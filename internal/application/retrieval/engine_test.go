package retrieval

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
	apperrors "recall-api/pkg/errors"
)

func TestWeights_Fuse(t *testing.T) {
	w := DefaultWeights()

	assert.InDelta(t, 0.5*0.8+0.25*0.5, w.Fuse(0.8, 5), 1e-9)
	assert.InDelta(t, 0.25, w.Fuse(0, 40), 1e-9, "lexical rank is capped at scale")
	assert.InDelta(t, 0.4, w.Fuse(0.8, 0), 1e-9, "missing lexical signal contributes zero")
	assert.Equal(t, 0.0, w.Fuse(-0.9, 0), "clamped at zero")
}

func TestWeights_FuseMonotonicInDense(t *testing.T) {
	w := DefaultWeights()
	for _, rank := range []float64{0, 0.3, 5, 10, 50} {
		prev := w.Fuse(-1, rank)
		for dense := -1.0; dense <= 1.0; dense += 0.05 {
			cur := w.Fuse(dense, rank)
			assert.GreaterOrEqual(t, cur, prev, "dense=%.2f rank=%.1f", dense, rank)
			prev = cur
		}
	}
}

func TestMaxSim(t *testing.T) {
	query := [][]float32{{1, 0}, {0, 1}}
	doc := [][]float32{{1, 0}, {0.5, 0.5}}

	// token1 max = 1, token2 max = 0.5
	assert.InDelta(t, 0.75, MaxSim(query, doc), 1e-9)
	assert.Equal(t, 0.0, MaxSim(nil, doc))
	assert.Equal(t, 0.0, MaxSim(query, nil))

	negative := [][]float32{{-1, 0}}
	assert.InDelta(t, -1.0, MaxSim([][]float32{{1, 0}}, negative), 1e-9)
}

func TestRerank_IndependentOfInputOrder(t *testing.T) {
	w := DefaultWeights()
	query := [][]float32{{1, 0, 0}, {0, 1, 0}}
	tokens := map[string]*entity.TokenEmbeddings{}

	build := func() []*candidate {
		var cands []*candidate
		for i := 0; i < 12; i++ {
			id := fmt.Sprintf("c%02d", i)
			fusion := float64(i%5) / 10
			cands = append(cands, &candidate{
				order:  i,
				result: &entity.RetrievalResult{Chunk: &entity.Chunk{ID: id}, Score: fusion, Scores: entity.ScoreBreakdown{Fusion: fusion}},
			})
			if i%3 != 0 {
				tokens[id] = &entity.TokenEmbeddings{Vectors: [][]float32{{float32(i) / 12, 0, 1}, {0, float32(12-i) / 24, 0}}}
			}
		}
		return cands
	}

	ids := func(cands []*candidate) []string {
		out := make([]string, 0, len(cands))
		for _, c := range cands {
			out = append(out, c.result.Chunk.ID)
		}
		return out
	}

	base := build()
	applyMaxSim(w, query, base, tokens)
	rank(base)
	want := ids(base)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		shuffled := build()
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		applyMaxSim(w, query, shuffled, tokens)
		rank(shuffled)

		got := ids(shuffled)
		for i := range got {
			assert.InDelta(t, base[i].result.Score, shuffled[i].result.Score, 1e-12)
		}
		// 分数不同的位置顺序必须一致
		for i := 0; i+1 < len(got); i++ {
			if base[i].result.Score != base[i+1].result.Score {
				assert.Equal(t, want[i], got[i])
			}
		}
	}
}

func TestRank_StableOnTies(t *testing.T) {
	cands := []*candidate{
		{order: 0, result: &entity.RetrievalResult{Chunk: &entity.Chunk{ID: "a"}, Score: 0.5}},
		{order: 1, result: &entity.RetrievalResult{Chunk: &entity.Chunk{ID: "b"}, Score: 0.9}},
		{order: 2, result: &entity.RetrievalResult{Chunk: &entity.Chunk{ID: "c"}, Score: 0.5}},
	}
	rank(cands)
	assert.Equal(t, "b", cands[0].result.Chunk.ID)
	assert.Equal(t, "a", cands[1].result.Chunk.ID)
	assert.Equal(t, "c", cands[2].result.Chunk.ID)
}

func detail(id, doc string, ordinal int) *entity.Chunk {
	return &entity.Chunk{ID: id, DocumentID: doc, Ordinal: ordinal, Tier: entity.TierDetail, Content: "content " + id}
}

func engineFixture() (*fakeEmbedder, *fakeVector, *fakeChunkStore, *fakeDocStore) {
	chunks := newFakeChunkStore(
		detail("a1", "d1", 1), detail("a2", "d1", 2), detail("a3", "d1", 3),
		detail("b1", "d2", 1), detail("b2", "d2", 2), detail("b3", "d2", 3),
		&entity.Chunk{ID: "s0", DocumentID: "d2", Ordinal: 0, Tier: entity.TierSummary, Content: "summary"},
	)
	docs := &fakeDocStore{docs: map[string]*entity.Document{
		"d1": {ID: "d1", Title: "Roboter", SourceKind: entity.SourceKindVideo, CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		"d2": {ID: "d2", Title: "Pflege", SourceKind: entity.SourceKindText},
	}}
	return &fakeEmbedder{vec: []float32{1, 0}}, &fakeVector{}, chunks, docs
}

func TestEngine_Search_FusesAndEnriches(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	vec.hits = []*VectorHit{
		{ChunkID: "a2", DocumentID: "d1", Score: 0.9},
		{ChunkID: "b1", DocumentID: "d2", Score: 0.4},
	}
	chunks.lexical = []repository.LexicalHit{
		{ChunkID: "b1", Rank: 10},
		{ChunkID: "s0", Rank: 2},
	}
	e := NewEngine(emb, vec, chunks, docs, Options{})

	out, err := e.Search(context.Background(), SearchInput{Query: "roboter", TopK: 3})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)

	// a2: 0.45, b1: 0.2+0.25, s0: 0.05
	assert.Equal(t, "a2", out.Results[0].Chunk.ID)
	assert.Equal(t, "b1", out.Results[1].Chunk.ID)
	assert.Equal(t, "s0", out.Results[2].Chunk.ID)
	assert.InDelta(t, 0.45, out.Results[0].Score, 1e-6)
	assert.InDelta(t, 0.05, out.Results[2].Score, 1e-6)

	top := out.Results[0]
	assert.Equal(t, "Roboter", top.DocumentTitle)
	assert.Equal(t, entity.SourceKindVideo, top.SourceKind)
	require.NotNil(t, top.Prev)
	require.NotNil(t, top.Next)
	assert.Equal(t, "a1", top.Prev.ID)
	assert.Equal(t, "a3", top.Next.ID)

	assert.Nil(t, out.Results[2].Prev, "summary tier has no neighbors")
	assert.Equal(t, 6, vec.lastParam.TopK, "candidate cap is 2x top_k")
}

func TestSimilarityScore(t *testing.T) {
	assert.Equal(t, 0.9, SimilarityScore(0.9))
	assert.Equal(t, 0.4, SimilarityScore(0.4))

	w := DefaultWeights()
	assert.Equal(t, w.Fuse(SimilarityScore(0.9), 0), w.Fuse(SimilarityScore(0.4), 10))
	assert.Equal(t, w.Blend(0.45, 0.5), w.Blend(0.45, 0.5000000000001))
}

func TestEngine_Search_TieKeepsCandidateOrder(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	// b1: 0.2+0.25 == a2: 0.45
	vec.hits = []*VectorHit{
		{ChunkID: "b1", DocumentID: "d2", Score: 0.4},
		{ChunkID: "a2", DocumentID: "d1", Score: 0.9},
	}
	chunks.lexical = []repository.LexicalHit{{ChunkID: "b1", Rank: 10}}
	e := NewEngine(emb, vec, chunks, docs, Options{})

	out, err := e.Search(context.Background(), SearchInput{Query: "roboter", TopK: 2})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "b1", out.Results[0].Chunk.ID)
	assert.Equal(t, "a2", out.Results[1].Chunk.ID)
	assert.Equal(t, out.Results[0].Score, out.Results[1].Score)

	// 换序后并列结果也随之换序
	vec.hits[0], vec.hits[1] = vec.hits[1], vec.hits[0]
	out, err = e.Search(context.Background(), SearchInput{Query: "roboter", TopK: 2})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "a2", out.Results[0].Chunk.ID)
	assert.Equal(t, "b1", out.Results[1].Chunk.ID)
}

func TestEngine_Search_PartialBranchFailure(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	vec.hits = []*VectorHit{{ChunkID: "a1", DocumentID: "d1", Score: 0.7}}
	chunks.lexicalErr = errBoom
	e := NewEngine(emb, vec, chunks, docs, Options{})

	out, err := e.Search(context.Background(), SearchInput{Query: "roboter"})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "a1", out.Results[0].Chunk.ID)
	assert.Contains(t, out.Debug.DegradedSteps, "lexical")
}

func TestEngine_Search_EmbeddingFailureFallsBackToLexical(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	emb.embedErr = errBoom
	chunks.lexical = []repository.LexicalHit{{ChunkID: "b2", Rank: 3}}
	e := NewEngine(emb, vec, chunks, docs, Options{})

	out, err := e.Search(context.Background(), SearchInput{Query: "pflege"})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "b2", out.Results[0].Chunk.ID)
	assert.Nil(t, vec.lastParam, "dense branch skipped without a query vector")
	assert.Contains(t, out.Debug.DegradedSteps, "embed")
}

func TestEngine_Search_Rerank(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	emb.tokens = &entity.TokenEmbeddings{Vectors: [][]float32{{1, 0}}}
	vec.hits = []*VectorHit{
		{ChunkID: "a1", Score: 0.9},
		{ChunkID: "a2", Score: 0.8},
		{ChunkID: "a3", Score: 0.7},
		{ChunkID: "b1", Score: 0.6},
		{ChunkID: "b2", Score: 0.5},
		{ChunkID: "b3", Score: 0.4},
	}
	// b3 的词元向量与查询完全一致，a1 完全相反
	chunks.tokens["b3"] = &entity.TokenEmbeddings{Vectors: [][]float32{{1, 0}}}
	chunks.tokens["a1"] = &entity.TokenEmbeddings{Vectors: [][]float32{{-1, 0}}}
	e := NewEngine(emb, vec, chunks, docs, Options{})

	out, err := e.Search(context.Background(), SearchInput{Query: "q", TopK: 6, Rerank: true})
	require.NoError(t, err)
	require.True(t, out.Debug.Reranked)

	scores := map[string]*entity.RetrievalResult{}
	for _, r := range out.Results {
		scores[r.Chunk.ID] = r
	}
	// b3: 0.6*0.2 + 0.4*1 = 0.52 ; a1: 0.6*0.45 - 0.4 = -0.13
	assert.InDelta(t, 0.52, scores["b3"].Score, 1e-6)
	assert.InDelta(t, -0.13, scores["a1"].Score, 1e-6)
	assert.InDelta(t, 0.4, scores["a2"].Score, 1e-6, "no token embeddings keeps fusion score")
	assert.Equal(t, "b3", out.Results[0].Chunk.ID)
	assert.Equal(t, "a1", out.Results[len(out.Results)-1].Chunk.ID)

	for i := 1; i < len(out.Results); i++ {
		assert.GreaterOrEqual(t, out.Results[i-1].Score, out.Results[i].Score)
	}
}

func TestEngine_Search_RerankSkippedForFewCandidates(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	emb.tokensErr = errBoom
	vec.hits = []*VectorHit{{ChunkID: "a1", Score: 0.9}, {ChunkID: "a2", Score: 0.8}}
	e := NewEngine(emb, vec, chunks, docs, Options{})

	out, err := e.Search(context.Background(), SearchInput{Query: "q", Rerank: true})
	require.NoError(t, err)
	assert.False(t, out.Debug.Reranked)
	assert.NotContains(t, out.Debug.DegradedSteps, "rerank")
}

func TestEngine_Search_RerankDegrades(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	emb.tokensErr = ErrTokenEmbeddingsUnavailable
	for _, id := range []string{"a1", "a2", "a3", "b1", "b2", "b3"} {
		vec.hits = append(vec.hits, &VectorHit{ChunkID: id, Score: 0.5})
	}
	e := NewEngine(emb, vec, chunks, docs, Options{})

	out, err := e.Search(context.Background(), SearchInput{Query: "q", Rerank: true})
	require.NoError(t, err)
	assert.False(t, out.Debug.Reranked)
	assert.Contains(t, out.Debug.DegradedSteps, "rerank")
	assert.Len(t, out.Results, 6)
}

func TestEngine_Search_InvalidInput(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	e := NewEngine(emb, vec, chunks, docs, Options{})

	_, err := e.Search(context.Background(), SearchInput{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err = e.SearchByDateRange(context.Background(), start, end, "", 10, false)
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = e.SearchBySpeaker(context.Background(), " ", "", 10, false)
	assert.True(t, apperrors.IsAppError(err))
}

func TestEngine_SearchBySpeaker_WithoutQuery(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	b2 := chunks.chunks["b2"]
	b2.Speaker = entity.StringPtr("Nina")
	b2.Importance = 0.7
	chunks.bySpeaker = []*entity.Chunk{b2}
	e := NewEngine(emb, vec, chunks, docs, Options{})

	out, err := e.SearchBySpeaker(context.Background(), "Nina", "", 10, false)
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Pflege", out.Results[0].DocumentTitle)
	assert.Equal(t, 0.7, out.Results[0].Score)
	assert.Equal(t, "b1", out.Results[0].Prev.ID)
}

func TestEngine_SearchBySpeaker_WithQueryFilters(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	vec.hits = []*VectorHit{{ChunkID: "b2", Score: 0.6}}
	e := NewEngine(emb, vec, chunks, docs, Options{})

	_, err := e.SearchBySpeaker(context.Background(), "Nina", "pflege", 5, false)
	require.NoError(t, err)
	require.NotNil(t, vec.lastParam.Filter)
	assert.Equal(t, "Nina", vec.lastParam.Filter.Speaker)
}

func TestEngine_SimilarDocuments(t *testing.T) {
	emb, vec, chunks, docs := engineFixture()
	docs.docs["d1"].SummaryEmbedding = []float32{1, 0}
	vec.summaries = []*VectorHit{{DocumentID: "d1", Score: 1}, {DocumentID: "d2", Score: 0.8}}
	e := NewEngine(emb, vec, chunks, docs, Options{})

	similar, err := e.SimilarDocuments(context.Background(), "d1", 5)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "d2", similar[0].Document.ID)
	assert.InDelta(t, 0.8, similar[0].Similarity, 1e-6)

	none, err := e.SimilarDocuments(context.Background(), "d2", 5)
	require.NoError(t, err)
	assert.Empty(t, none, "no summary embedding yet")

	_, err = e.SimilarDocuments(context.Background(), "missing", 5)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}
