// Package service 跨层共享的调用上下文
package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyWorkflow llmCtxKey = "llm_workflow"
	llmCtxKeyModel    llmCtxKey = "llm_model"

	unknown = "unknown"
)

// WithLLMCall 标记本次模型调用所属的工作流与请求的模型名，供回调打点
func WithLLMCall(ctx context.Context, workflow, model string) context.Context {
	if w := strings.TrimSpace(workflow); w != "" {
		ctx = context.WithValue(ctx, llmCtxKeyWorkflow, w)
	}
	if m := strings.TrimSpace(model); m != "" {
		ctx = context.WithValue(ctx, llmCtxKeyModel, m)
	}
	return ctx
}

func WorkflowFromContext(ctx context.Context) string {
	return stringValue(ctx, llmCtxKeyWorkflow)
}

// ModelFromContext 请求的模型名；未标记时为 unknown
func ModelFromContext(ctx context.Context) string {
	return stringValue(ctx, llmCtxKeyModel)
}

func stringValue(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return unknown
	}
	s, ok := ctx.Value(key).(string)
	if !ok || s == "" {
		return unknown
	}
	return s
}
