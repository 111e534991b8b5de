// Package tracer 提供 OpenTelemetry 链路追踪：OTLP 导出、检索与摄取阶段 span 及其业务属性
package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "recall-api"

// 业务属性键
const (
	AttrDocumentID = attribute.Key("recall.document_id")
	AttrJobID      = attribute.Key("recall.job_id")
	AttrSessionID  = attribute.Key("recall.session_id")
	AttrStrategy   = attribute.Key("recall.strategy")
	AttrTopK       = attribute.Key("recall.top_k")
	AttrCandidates = attribute.Key("recall.candidates")
	AttrResults    = attribute.Key("recall.results")
	AttrReranked   = attribute.Key("recall.reranked")
	AttrBranch     = attribute.Key("recall.branch")
)

// degradedEvent 分支降级事件名
const degradedEvent = "recall.degraded"

var tracer trace.Tracer

// Config 追踪配置
type Config struct {
	ServiceName string
	Version     string
	Environment string
	Endpoint    string
	SampleRate  float64
	Enabled     bool
}

// Init 初始化追踪；未启用时 span 交给全局 noop provider
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if !cfg.Enabled {
		tracer = otel.Tracer(cfg.ServiceName)
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), newResource(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer = tp.Tracer(cfg.ServiceName)
	return tp.Shutdown, nil
}

func newResource(cfg Config) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// newSampler 采样率 >=1 全采，<=0 不采，其余按 trace ID 比例；父 span 已采样时跟随父
func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Start 开始一个新的 Span，名称约定为 package.Type.Method
func Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t := tracer
	if t == nil {
		t = otel.Tracer(defaultServiceName)
	}
	return t.Start(ctx, name, opts...)
}

// Annotate 给当前 span 追加属性
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// Degrade 在当前 span 上记录分支降级；降级不把 span 标为失败
func Degrade(ctx context.Context, branch, reason string, err error) {
	attrs := []attribute.KeyValue{AttrBranch.String(branch), attribute.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	trace.SpanFromContext(ctx).AddEvent(degradedEvent, trace.WithAttributes(attrs...))
}

// Fail 记录错误并把 span 标为失败
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID 从 context 获取 trace ID
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID 从 context 获取 span ID
func SpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}
