package chain

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	llmctx "recall-api/internal/domain/service"
	wfmodel "recall-api/internal/workflow/model"
	workflowport "recall-api/internal/workflow/port"
	workflowprompt "recall-api/internal/workflow/prompt"
	apperrors "recall-api/pkg/errors"
)

const (
	judgeMaxTokens   = 10
	judgeTemperature = float32(0)
)

var scorePattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// JudgeChain 质量评审：返回 [0,1] 的回答质量分
type JudgeChain struct {
	factory workflowport.ChatModelFactory
}

func NewJudgeChain(factory workflowport.ChatModelFactory) *JudgeChain {
	return &JudgeChain{factory: factory}
}

func (c *JudgeChain) Score(ctx context.Context, in *wfmodel.JudgeInput) (float64, error) {
	if c == nil || c.factory == nil {
		return 0, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return 0, fmt.Errorf("input is nil")
	}

	ctx = llmctx.WithLLMCall(ctx, "quality_judge", strings.TrimSpace(in.Model))
	chatModel, err := c.factory.Get(ctx, strings.TrimSpace(in.Model))
	if err != nil {
		return 0, err
	}

	msgs, err := formatJudgeMessages(ctx, in)
	if err != nil {
		return 0, err
	}
	maxTokens, temperature := judgeMaxTokens, judgeTemperature
	outMsg, err := chatModel.Generate(ctx, msgs, buildModelOptions(&temperature, &maxTokens)...)
	if err != nil {
		return 0, err
	}
	if outMsg == nil {
		return 0, fmt.Errorf("empty llm response")
	}
	return ParseScore(outMsg.Content)
}

// ParseScore 取回复中的第一个数，截断到 [0,1]
func ParseScore(text string) (float64, error) {
	m := scorePattern.FindString(text)
	if m == "" {
		return 0, apperrors.ErrQualityJudgmentUnavailable.WithDetail(fmt.Sprintf("unparseable score %q", text))
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0, apperrors.ErrQualityJudgmentUnavailable.WithError(err)
	}
	switch {
	case v < 0:
		return 0, nil
	case v > 1:
		return 1, nil
	}
	return v, nil
}

func formatJudgeMessages(ctx context.Context, in *wfmodel.JudgeInput) ([]*schema.Message, error) {
	tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptQualityJudgeV1)
	if err != nil {
		return nil, err
	}
	vars := map[string]any{
		"query":        strings.TrimSpace(in.Query),
		"context":      strings.TrimSpace(in.Context),
		"answer":       strings.TrimSpace(in.Answer),
		"conversation": strings.TrimSpace(in.Conversation),
	}
	return tpl.Format(ctx, vars)
}
