package model

type LLMUsageMeta struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens 合计 Token 数
func (m LLMUsageMeta) TotalTokens() int {
	return m.PromptTokens + m.CompletionTokens
}
