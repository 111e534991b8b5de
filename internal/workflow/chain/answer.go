package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "recall-api/internal/domain/service"
	wfmodel "recall-api/internal/workflow/model"
	workflowport "recall-api/internal/workflow/port"
	workflowprompt "recall-api/internal/workflow/prompt"
)

type AnswerChain struct {
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.AnswerInput, *schema.Message]
	chainErr  error
}

func NewAnswerChain(factory workflowport.ChatModelFactory) *AnswerChain {
	return &AnswerChain{factory: factory}
}

func (c *AnswerChain) Invoke(ctx context.Context, in *wfmodel.AnswerInput) (*schema.Message, error) {
	if err := c.validate(in); err != nil {
		return nil, err
	}
	// 先解析模型，未提供的模型直接返回原始错误
	if _, err := c.factory.Get(ctx, strings.TrimSpace(in.Model)); err != nil {
		return nil, err
	}
	chain, err := c.getChain()
	if err != nil {
		return nil, err
	}
	return chain.Invoke(ctx, in)
}

// Stream 返回 Eino StreamReader；调用方负责 Close()。
// 约定：流可能在最后返回一个 Content 为空但包含 Usage 的消息，用于 Token 统计。
func (c *AnswerChain) Stream(ctx context.Context, in *wfmodel.AnswerInput) (*schema.StreamReader[*schema.Message], error) {
	if err := c.validate(in); err != nil {
		return nil, err
	}

	ctx = llmctx.WithLLMCall(ctx, "answer_stream_"+string(in.Mode), strings.TrimSpace(in.Model))
	chatModel, err := c.factory.Get(ctx, strings.TrimSpace(in.Model))
	if err != nil {
		return nil, err
	}
	msgs, err := formatAnswerMessages(ctx, in)
	if err != nil {
		return nil, err
	}
	return chatModel.Stream(ctx, msgs, buildModelOptions(in.Temperature, in.MaxTokens)...)
}

func (c *AnswerChain) validate(in *wfmodel.AnswerInput) error {
	if c == nil || c.factory == nil {
		return fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return fmt.Errorf("input is nil")
	}
	if strings.TrimSpace(in.Query) == "" {
		return fmt.Errorf("query is required")
	}
	return nil
}

type answerChainState struct {
	In       *wfmodel.AnswerInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *AnswerChain) getChain() (compose.Runnable[*wfmodel.AnswerInput, *schema.Message], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *AnswerChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.AnswerInput, *schema.Message], error) {
	chain := compose.NewChain[*wfmodel.AnswerInput, *schema.Message]()

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, in *wfmodel.AnswerInput) (*answerChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			return &answerChainState{In: in}, nil
		}),
		compose.WithNodeName("answer.init"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *answerChainState) (*answerChainState, error) {
			msgs, err := formatAnswerMessages(ctx, st.In)
			if err != nil {
				return nil, err
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("answer.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *answerChainState) (*answerChainState, error) {
			ctx = llmctx.WithLLMCall(ctx, "answer_"+string(st.In.Mode), strings.TrimSpace(st.In.Model))
			chatModel, err := c.factory.Get(ctx, strings.TrimSpace(st.In.Model))
			if err != nil {
				return nil, err
			}
			outMsg, err := chatModel.Generate(ctx, st.Messages, buildModelOptions(st.In.Temperature, st.In.MaxTokens)...)
			if err != nil {
				return nil, err
			}
			if outMsg == nil {
				return nil, fmt.Errorf("empty llm response")
			}
			st.OutMsg = outMsg
			return st, nil
		}),
		compose.WithNodeName("answer.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *answerChainState) (*schema.Message, error) {
			if st == nil || st.OutMsg == nil {
				return nil, fmt.Errorf("state is nil")
			}
			return st.OutMsg, nil
		}),
		compose.WithNodeName("answer.finalize"),
	)

	return chain.Compile(ctx)
}

var defaultPromptRegistry = workflowprompt.NewRegistry()

func formatAnswerMessages(ctx context.Context, in *wfmodel.AnswerInput) ([]*schema.Message, error) {
	id := workflowprompt.PromptAnswerGroundedV1
	if in.Mode == wfmodel.AnswerKnowledge {
		id = workflowprompt.PromptAnswerKnowledgeV1
	}
	tpl, err := defaultPromptRegistry.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	vars := map[string]any{
		"query":        strings.TrimSpace(in.Query),
		"context":      strings.TrimSpace(in.Context),
		"conversation": strings.TrimSpace(in.Conversation),
		"note":         strings.TrimSpace(in.Note),
	}
	return tpl.Format(ctx, vars)
}

func buildModelOptions(temperature *float32, maxTokens *int) []model.Option {
	opts := make([]model.Option, 0, 2)
	if temperature != nil {
		opts = append(opts, model.WithTemperature(*temperature))
	}
	if maxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*maxTokens))
	}
	return opts
}

// UsageOf 从响应中读取 Token 用量
func UsageOf(msg *schema.Message, modelName string) wfmodel.LLMUsageMeta {
	meta := wfmodel.LLMUsageMeta{Model: modelName}
	if msg != nil && msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		meta.PromptTokens = msg.ResponseMeta.Usage.PromptTokens
		meta.CompletionTokens = msg.ResponseMeta.Usage.CompletionTokens
	}
	return meta
}
