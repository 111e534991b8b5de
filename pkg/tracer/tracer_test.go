package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := tracer
	tracer = tp.Tracer("test")
	t.Cleanup(func() {
		tracer = prev
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestStart_AnnotateAndDegrade(t *testing.T) {
	rec := useRecorder(t)

	ctx, span := Start(context.Background(), "retrieval.Engine.Search")
	assert.NotEmpty(t, TraceID(ctx))
	assert.NotEmpty(t, SpanID(ctx))
	Annotate(ctx, AttrTopK.Int(5), AttrStrategy.String("speaker"))
	Degrade(ctx, "lexical", "timeout", context.DeadlineExceeded)
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "retrieval.Engine.Search", s.Name())
	attrs := attrMap(s.Attributes())
	assert.Equal(t, int64(5), attrs[AttrTopK].AsInt64())
	assert.Equal(t, "speaker", attrs[AttrStrategy].AsString())

	require.Len(t, s.Events(), 1)
	ev := s.Events()[0]
	assert.Equal(t, degradedEvent, ev.Name)
	evAttrs := attrMap(ev.Attributes)
	assert.Equal(t, "lexical", evAttrs[AttrBranch].AsString())
	assert.Equal(t, "timeout", evAttrs["reason"].AsString())
	assert.Equal(t, codes.Unset, s.Status().Code, "degradation does not fail the span")
}

func TestFail(t *testing.T) {
	rec := useRecorder(t)

	_, span := Start(context.Background(), "ingestion.Service.Handle")
	Fail(span, nil)
	Fail(span, errors.New("chunk write failed"))
	span.End()

	s := rec.Ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "chunk write failed", s.Status().Description)
	require.Len(t, s.Events(), 1, "error recorded once")
}

func TestTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
	assert.Empty(t, SpanID(context.Background()))
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "root:TraceIDRatioBased{0.25}")
}

func TestInit_Disabled(t *testing.T) {
	prev := tracer
	t.Cleanup(func() { tracer = prev })

	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, tracer)
}

func TestNewResource(t *testing.T) {
	res := newResource(Config{ServiceName: "ingest-worker", Version: "1.2.0", Environment: "staging"})
	attrs := attrMap(res.Attributes())
	assert.Equal(t, "ingest-worker", attrs["service.name"].AsString())
	assert.Equal(t, "1.2.0", attrs["service.version"].AsString())
	assert.Equal(t, "staging", attrs["deployment.environment"].AsString())
}
