package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var cacheTracer = otel.Tracer("redis.cache")

const vectorKeyPrefix = "emb:q:"

// VectorCache 查询向量缓存，值为小端 float32 序列
type VectorCache struct {
	client *Client
}

// NewVectorCache 创建查询向量缓存
func NewVectorCache(client *Client) *VectorCache {
	return &VectorCache{client: client}
}

// Get 命中返回向量与 true；未命中返回 nil, false, nil
func (c *VectorCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	raw, err := c.client.rdb.Get(ctx, vectorKeyPrefix+key).Bytes()
	if err != nil {
		if IsNil(err) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, err
	}

	vec, err := decodeVector(raw)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return vec, true, nil
}

// Set 写入向量
func (c *VectorCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	if err := c.client.rdb.Set(ctx, vectorKeyPrefix+key, encodeVector(vec), ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Invalidate 清空全部查询向量（更换模型后使用）
func (c *VectorCache) Invalidate(ctx context.Context) (int, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Invalidate")
	defer span.End()

	iter := c.client.rdb.Scan(ctx, 0, vectorKeyPrefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("cache.invalidated_count", len(keys)))
	return len(keys), c.client.rdb.Del(ctx, keys...).Err()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}
