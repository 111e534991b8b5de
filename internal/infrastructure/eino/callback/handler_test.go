package callback

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"recall-api/internal/domain/service"
	"recall-api/pkg/metrics"
)

func TestChatModelHandler_RecordsUsage(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithLLMCall(context.Background(), "callback_test_ok", "gpt-test")

	ctx = h.OnStart(ctx, nil, &model.CallbackInput{})
	h.OnEnd(ctx, nil, &model.CallbackOutput{
		TokenUsage: &model.TokenUsage{PromptTokens: 12, CompletionTokens: 3},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("callback_test_ok", "gpt-test", "success")))
	assert.Equal(t, 12.0, testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("callback_test_ok", "gpt-test", "prompt")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("callback_test_ok", "gpt-test", "completion")))
}

func TestChatModelHandler_RecordsError(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithLLMCall(context.Background(), "callback_test_err", "gpt-test")

	ctx = h.OnStart(ctx, nil, nil)
	h.OnError(ctx, nil, errors.New("rate limited"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("callback_test_err", "gpt-test", "error")))
}

func TestLLMCallContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", service.WorkflowFromContext(ctx))
	assert.Equal(t, "unknown", service.ModelFromContext(ctx))

	ctx = service.WithLLMCall(ctx, " judge ", "")
	assert.Equal(t, "judge", service.WorkflowFromContext(ctx))
	assert.Equal(t, "unknown", service.ModelFromContext(ctx))
}
