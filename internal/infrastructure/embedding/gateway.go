package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
	"recall-api/pkg/contenthash"
	"recall-api/pkg/logger"
	"recall-api/pkg/metrics"
)

var tracer = otel.Tracer("embedding")

// QueryCache 查询向量缓存
type QueryCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}

// TokenEmbedder 词元级向量服务
type TokenEmbedder interface {
	EmbedTokens(ctx context.Context, text string) (*entity.TokenEmbeddings, error)
}

// GatewayOptions 网关参数
type GatewayOptions struct {
	Model     string
	BatchSize int
	CacheTTL  time.Duration
}

// Gateway 向量网关，实现 retrieval.Embedder
type Gateway struct {
	dense embedding.Embedder
	token TokenEmbedder
	cache QueryCache
	opts  GatewayOptions
	group singleflight.Group
}

var _ retrieval.Embedder = (*Gateway)(nil)

// NewGateway token 与 cache 可为 nil
func NewGateway(dense embedding.Embedder, token TokenEmbedder, cache QueryCache, opts GatewayOptions) *Gateway {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	return &Gateway{dense: dense, token: token, cache: cache, opts: opts}
}

func (g *Gateway) cacheKey(text string) string {
	return g.opts.Model + ":" + contenthash.Of(text)
}

// Embed 查询向量，命中缓存直接返回；并发相同查询合并为一次调用
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "embedding.Gateway.Embed")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, retrieval.ErrEmptyQuery
	}

	key := g.cacheKey(text)
	if g.cache != nil && g.opts.CacheTTL > 0 {
		vec, ok, err := g.cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.Warn(ctx, "embedding cache read failed", "error", err.Error())
		case ok:
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return vec, nil
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	}

	v, err, shared := g.group.Do(key, func() (any, error) {
		vecs, err := g.embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if g.cache != nil && g.opts.CacheTTL > 0 {
			if err := g.cache.Set(context.WithoutCancel(ctx), key, vecs[0], g.opts.CacheTTL); err != nil {
				logger.Warn(ctx, "embedding cache write failed", "error", err.Error())
			}
		}
		return vecs[0], nil
	})
	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.([]float32), nil
}

// EmbedBatch 按批调用，结果与输入一一对应
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "embedding.Gateway.EmbedBatch",
		trace.WithAttributes(attribute.Int("embedding.texts", len(texts))))
	defer span.End()

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += g.opts.BatchSize {
		end := min(i+g.opts.BatchSize, len(texts))
		vecs, err := g.embed(ctx, texts[i:end])
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedTokens 未配置词元服务时返回 ErrTokenEmbeddingsUnavailable
func (g *Gateway) EmbedTokens(ctx context.Context, text string) (*entity.TokenEmbeddings, error) {
	if g.token == nil {
		return nil, retrieval.ErrTokenEmbeddingsUnavailable
	}
	ctx, span := tracer.Start(ctx, "embedding.Gateway.EmbedTokens")
	defer span.End()

	te, err := g.token.EmbedTokens(ctx, text)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", retrieval.ErrTokenEmbeddingsUnavailable, err)
	}
	return te, nil
}

func (g *Gateway) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if g.dense == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	raw, err := g.dense.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(raw) != len(texts) {
		return nil, errors.New("embedding count mismatch")
	}
	return toFloat32(raw), nil
}

func toFloat32(in [][]float64) [][]float32 {
	out := make([][]float32, len(in))
	for i, vec := range in {
		out[i] = make([]float32, len(vec))
		for j, v := range vec {
			out[i][j] = float32(v)
		}
	}
	return out
}
