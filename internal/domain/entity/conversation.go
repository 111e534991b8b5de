package entity

import "time"

// Role 对话角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn 一轮对话消息
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionState 会话状态
type SessionState string

const (
	SessionNoIntent        SessionState = "no_intent"
	SessionIntentCaptured  SessionState = "intent_captured"
	SessionSearchAttempted SessionState = "search_attempted"
	SessionAnswered        SessionState = "answered"
)

// SearchAttempt 一次检索尝试
type SearchAttempt struct {
	Query       string    `json:"query"`
	Strategy    Strategy  `json:"strategy"`
	Found       bool      `json:"found"`
	ResultCount int       `json:"result_count"`
	At          time.Time `json:"at"`
}

// ConversationIntent 会话级意图，仅由会话记忆维护
type ConversationIntent struct {
	SessionID        string              `json:"session_id"`
	State            SessionState        `json:"state"`
	OriginalQuestion string              `json:"original_question,omitempty"`
	Entities         []string            `json:"entities,omitempty"`
	EntityAliases    map[string][]string `json:"entity_aliases,omitempty"`
	Attempts         []SearchAttempt     `json:"attempts,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// NewConversationIntent 创建空会话意图
func NewConversationIntent(sessionID string) *ConversationIntent {
	now := time.Now()
	return &ConversationIntent{
		SessionID: sessionID,
		State:     SessionNoIntent,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AttemptCount 检索尝试次数
func (c *ConversationIntent) AttemptCount() int {
	return len(c.Attempts)
}
