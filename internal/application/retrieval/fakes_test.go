package retrieval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
)

type fakeEmbedder struct {
	vec       []float32
	tokens    *entity.TokenEmbeddings
	embedErr  error
	tokensErr error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.embedErr
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.embedErr
}

func (f *fakeEmbedder) EmbedTokens(context.Context, string) (*entity.TokenEmbeddings, error) {
	if f.tokensErr != nil {
		return nil, f.tokensErr
	}
	return f.tokens, nil
}

type fakeVector struct {
	mu        sync.Mutex
	hits      []*VectorHit
	summaries []*VectorHit
	searchErr error
	insertErr error
	inserted  []*VectorChunk
	deleted   []string
	upserted  []*VectorSummary
	lastParam *VectorSearchParams
}

func (f *fakeVector) EnsureCollections(context.Context) error { return nil }

func (f *fakeVector) InsertChunks(_ context.Context, rows []*VectorChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, rows...)
	return nil
}

func (f *fakeVector) SearchChunks(_ context.Context, p *VectorSearchParams) ([]*VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastParam = p
	return f.hits, f.searchErr
}

func (f *fakeVector) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeVector) UpsertSummary(_ context.Context, row *VectorSummary) error {
	f.upserted = append(f.upserted, row)
	return nil
}

func (f *fakeVector) SearchSummaries(context.Context, []float32, int, string) ([]*VectorHit, error) {
	return f.summaries, nil
}

type fakeChunkStore struct {
	chunks     map[string]*entity.Chunk
	lexical    []repository.LexicalHit
	lexicalErr error
	tokens     map[string]*entity.TokenEmbeddings
	bySpeaker  []*entity.Chunk
}

func newFakeChunkStore(chunks ...*entity.Chunk) *fakeChunkStore {
	f := &fakeChunkStore{chunks: make(map[string]*entity.Chunk), tokens: make(map[string]*entity.TokenEmbeddings)}
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return f
}

func (f *fakeChunkStore) GetByIDs(_ context.Context, ids []string) ([]*entity.Chunk, error) {
	var out []*entity.Chunk
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	// 存储返回顺序与请求无关
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeChunkStore) GetNeighbors(_ context.Context, documentID string, ordinal int) (*entity.Chunk, *entity.Chunk, error) {
	var prev, next *entity.Chunk
	for _, c := range f.chunks {
		if c.DocumentID != documentID || c.Tier != entity.TierDetail {
			continue
		}
		switch c.Ordinal {
		case ordinal - 1:
			prev = c
		case ordinal + 1:
			next = c
		}
	}
	return prev, next, nil
}

func (f *fakeChunkStore) LexicalSearch(context.Context, string, int, *repository.ChunkFilter) ([]repository.LexicalHit, error) {
	return f.lexical, f.lexicalErr
}

func (f *fakeChunkStore) FindBySpeaker(context.Context, string, int) ([]*entity.Chunk, error) {
	return f.bySpeaker, nil
}

func (f *fakeChunkStore) FindCreatedBetween(context.Context, time.Time, time.Time, int, int) ([]*entity.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkStore) GetTokenEmbeddings(_ context.Context, ids []string) (map[string]*entity.TokenEmbeddings, error) {
	out := make(map[string]*entity.TokenEmbeddings)
	for _, id := range ids {
		if t, ok := f.tokens[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

type fakeDocStore struct {
	docs map[string]*entity.Document
}

func (f *fakeDocStore) GetByID(_ context.Context, id string) (*entity.Document, error) {
	return f.docs[id], nil
}

func (f *fakeDocStore) GetByIDs(_ context.Context, ids []string) ([]*entity.Document, error) {
	var out []*entity.Document
	for _, id := range ids {
		if d, ok := f.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// fakeTx 模拟事务：失败时回滚已写入的文档与片段
type fakeTx struct {
	commitErr error
}

func (f *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return f.commitErr
}

type fakeWriter struct {
	docs      []*entity.Document
	chunks    []*entity.Chunk
	tokenRows []*entity.ChunkTokenEmbedding
	chunkErr  error
	deleted   []string
}

func (f *fakeWriter) Create(_ context.Context, doc *entity.Document) error {
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeWriter) UpdateSummary(context.Context, string, string, []float32) error { return nil }

func (f *fakeWriter) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeWriter) CreateBatch(_ context.Context, chunks []*entity.Chunk) error {
	if f.chunkErr != nil {
		return f.chunkErr
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeWriter) SaveTokenEmbeddings(_ context.Context, rows []*entity.ChunkTokenEmbedding) error {
	f.tokenRows = append(f.tokenRows, rows...)
	return nil
}

func (f *fakeWriter) DeleteByDocument(_ context.Context, id string) error {
	f.deleted = append(f.deleted, "chunks:"+id)
	return nil
}

var errBoom = errors.New("boom")
