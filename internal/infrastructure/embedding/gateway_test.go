package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
)

type fakeDense struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeDense) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, texts)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 0.5}
	}
	return out, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]float32
	err  error
}

func (c *memCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, vec []float32, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = vec
	return nil
}

type fakeToken struct {
	err error
}

func (f *fakeToken) EmbedTokens(_ context.Context, text string) (*entity.TokenEmbeddings, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &entity.TokenEmbeddings{Tokens: []string{text}, Vectors: [][]float32{{1, 0}}}, nil
}

func TestGateway_EmbedUsesCache(t *testing.T) {
	dense := &fakeDense{}
	cache := &memCache{data: map[string][]float32{}}
	g := NewGateway(dense, nil, cache, GatewayOptions{Model: "m", CacheTTL: time.Hour})
	ctx := context.Background()

	first, err := g.Embed(ctx, "  Preise Pflege  ")
	require.NoError(t, err)
	assert.Equal(t, []float32{13, 0.5}, first)

	second, err := g.Embed(ctx, "Preise Pflege")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, dense.calls, 1)
}

func TestGateway_CacheFailureStillEmbeds(t *testing.T) {
	dense := &fakeDense{}
	g := NewGateway(dense, nil, &memCache{data: map[string][]float32{}, err: errors.New("down")}, GatewayOptions{CacheTTL: time.Hour})

	vec, err := g.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0.5}, vec)
}

func TestGateway_EmbedEmpty(t *testing.T) {
	g := NewGateway(&fakeDense{}, nil, nil, GatewayOptions{})
	_, err := g.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, retrieval.ErrEmptyQuery)
}

func TestGateway_EmbedBatchSplits(t *testing.T) {
	dense := &fakeDense{}
	g := NewGateway(dense, nil, nil, GatewayOptions{BatchSize: 2})

	vecs, err := g.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, float32(4), vecs[3][0])
	assert.Len(t, dense.calls, 3)
}

func TestGateway_EmbedBatchError(t *testing.T) {
	g := NewGateway(&fakeDense{err: errors.New("503")}, nil, nil, GatewayOptions{})
	_, err := g.EmbedBatch(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestGateway_EmbedTokens(t *testing.T) {
	ctx := context.Background()

	_, err := NewGateway(&fakeDense{}, nil, nil, GatewayOptions{}).EmbedTokens(ctx, "x")
	assert.ErrorIs(t, err, retrieval.ErrTokenEmbeddingsUnavailable)

	te, err := NewGateway(&fakeDense{}, &fakeToken{}, nil, GatewayOptions{}).EmbedTokens(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, te.Tokens)

	_, err = NewGateway(&fakeDense{}, &fakeToken{err: errors.New("timeout")}, nil, GatewayOptions{}).EmbedTokens(ctx, "x")
	assert.ErrorIs(t, err, retrieval.ErrTokenEmbeddingsUnavailable)
}
