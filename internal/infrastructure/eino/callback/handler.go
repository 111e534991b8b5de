package callback

import (
	"context"
	"errors"
	"io"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recall-api/internal/domain/service"
	"recall-api/pkg/logger"
	"recall-api/pkg/metrics"
)

type startTimeKey struct{}

func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := []attribute.KeyValue{
				attribute.String("eino.workflow", service.WorkflowFromContext(ctx)),
				attribute.String("llm.model", modelName(ctx, input)),
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}

			ctx, _ = otel.Tracer("eino").Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			var usage *model.TokenUsage
			if output != nil {
				usage = output.TokenUsage
			}
			finish(ctx, usage, nil)
			return ctx
		},

		// 流式输出在后台读完后再结算
		OnEndWithStreamOutput: func(ctx context.Context, _ *einocb.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
			go func() {
				defer output.Close()
				var usage *model.TokenUsage
				for {
					chunk, err := output.Recv()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						finish(ctx, usage, err)
						return
					}
					if chunk != nil && chunk.TokenUsage != nil {
						usage = chunk.TokenUsage
					}
				}
				finish(ctx, usage, nil)
			}()
			return ctx
		},

		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			finish(ctx, nil, err)
			return ctx
		},
	}
}

// finish 上报指标并结束 span
func finish(ctx context.Context, usage *model.TokenUsage, err error) {
	workflow := service.WorkflowFromContext(ctx)
	modelName := service.ModelFromContext(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMCallTotal.WithLabelValues(workflow, modelName, status).Inc()
	d := elapsedSeconds(ctx)
	if d > 0 {
		metrics.LLMCallDuration.WithLabelValues(workflow, modelName).Observe(d)
	}

	span := trace.SpanFromContext(ctx)
	if err != nil {
		logger.Warn(ctx, "llm call failed", "workflow", workflow, "model", modelName, "error", err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return
	}

	if usage != nil {
		metrics.LLMTokensUsed.WithLabelValues(workflow, modelName, "prompt").Add(float64(usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(workflow, modelName, "completion").Add(float64(usage.CompletionTokens))
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", usage.PromptTokens),
			attribute.Int("llm.completion_tokens", usage.CompletionTokens),
		)
		logger.Debug(ctx, "llm call finished",
			"workflow", workflow,
			"model", modelName,
			"prompt_tokens", usage.PromptTokens,
			"completion_tokens", usage.CompletionTokens,
			"duration_ms", int(d*1000),
		)
	}
	span.End()
}

func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

// modelName 优先取实际调用配置中的模型名
func modelName(ctx context.Context, in *model.CallbackInput) string {
	if in != nil && in.Config != nil && in.Config.Model != "" {
		return in.Config.Model
	}
	return service.ModelFromContext(ctx)
}
