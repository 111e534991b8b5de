package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	llmctx "recall-api/internal/domain/service"
	wfmodel "recall-api/internal/workflow/model"
	workflowport "recall-api/internal/workflow/port"
	workflowprompt "recall-api/internal/workflow/prompt"
)

const (
	summaryMaxTokens    = 1000
	summaryTemperature  = float32(0.3)
	summaryContentRunes = 60000
)

// SummaryChain 文档结构化摘要
type SummaryChain struct {
	factory workflowport.ChatModelFactory
}

func NewSummaryChain(factory workflowport.ChatModelFactory) *SummaryChain {
	return &SummaryChain{factory: factory}
}

func (c *SummaryChain) Summarize(ctx context.Context, in *wfmodel.SummaryInput) (string, error) {
	if c == nil || c.factory == nil {
		return "", fmt.Errorf("llm factory not configured")
	}
	if in == nil || strings.TrimSpace(in.Content) == "" {
		return "", fmt.Errorf("content is required")
	}

	ctx = llmctx.WithLLMCall(ctx, "document_summary", strings.TrimSpace(in.Model))
	chatModel, err := c.factory.Get(ctx, strings.TrimSpace(in.Model))
	if err != nil {
		return "", err
	}

	msgs, err := formatSummaryMessages(ctx, in)
	if err != nil {
		return "", err
	}
	maxTokens, temperature := summaryMaxTokens, summaryTemperature
	outMsg, err := chatModel.Generate(ctx, msgs, buildModelOptions(&temperature, &maxTokens)...)
	if err != nil {
		return "", err
	}
	if outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
		return "", fmt.Errorf("empty llm response")
	}
	return strings.TrimSpace(outMsg.Content), nil
}

func formatSummaryMessages(ctx context.Context, in *wfmodel.SummaryInput) ([]*schema.Message, error) {
	tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptDocumentSummaryV1)
	if err != nil {
		return nil, err
	}
	vars := map[string]any{
		"title":   strings.TrimSpace(in.Title),
		"content": clipRunes(strings.TrimSpace(in.Content), summaryContentRunes),
	}
	return tpl.Format(ctx, vars)
}

// clipRunes 超长正文按字符截断，不切断多字节字符
func clipRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
