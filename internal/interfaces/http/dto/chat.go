package dto

import (
	"fmt"
	"strings"

	"recall-api/internal/application/answer"
	"recall-api/internal/domain/entity"
)

// ChatTurn 对话历史中的一条消息
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 提问请求
type ChatRequest struct {
	Message             string     `json:"message" binding:"required"`
	ConversationID      string     `json:"conversation_id,omitempty"`
	ConversationHistory []ChatTurn `json:"conversation_history,omitempty"`
	Model               string     `json:"model,omitempty"`
	Stream              bool       `json:"stream,omitempty"`
	Debug               bool       `json:"debug,omitempty"`
}

// ToAnswerRequest 转换为编排器请求
func (r *ChatRequest) ToAnswerRequest() (answer.Request, error) {
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		return answer.Request{}, fmt.Errorf("message is empty")
	}
	if len(r.ConversationID) > 128 {
		return answer.Request{}, fmt.Errorf("conversation_id too long")
	}

	history := make([]entity.Turn, 0, len(r.ConversationHistory))
	for i, t := range r.ConversationHistory {
		role := entity.Role(strings.ToLower(strings.TrimSpace(t.Role)))
		switch role {
		case entity.RoleUser, entity.RoleAssistant, entity.RoleSystem:
		default:
			return answer.Request{}, fmt.Errorf("conversation_history[%d]: unknown role %q", i, t.Role)
		}
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		history = append(history, entity.Turn{Role: role, Content: t.Content})
	}

	return answer.Request{
		Query:          msg,
		SessionID:      strings.TrimSpace(r.ConversationID),
		History:        history,
		PreferredModel: strings.TrimSpace(r.Model),
		Debug:          r.Debug,
	}, nil
}

// ModelsResponse 可用模型
type ModelsResponse struct {
	Models  []string          `json:"models"`
	Tiers   answer.ModelTiers `json:"tiers"`
	Default string            `json:"default"`
}
