package answer

import "strings"

// ModelTiers 生成模型档位
type ModelTiers struct {
	Default       string `json:"default"`
	LargeContext  string `json:"large_context"`
	DeepReasoning string `json:"deep_reasoning"`
}

var (
	reasoningKeywords = []string{
		"analysiere", "analyze", "erkläre", "explain",
		"warum", "why", "strategie", "strategy",
		"vergleiche", "compare", "bewerte", "evaluate",
	}
	definitionalPhrases = []string{"was ist", "erkläre", "what is", "explain"}
)

// NeedsReasoning 查询是否包含推理类词汇
func NeedsReasoning(query string) bool {
	return containsAny(strings.ToLower(query), reasoningKeywords)
}

// IsDefinitional 定义类问题
func IsDefinitional(query string) bool {
	return containsAny(strings.ToLower(query), definitionalPhrases)
}

// SelectModel 推理类问题用深度推理档；上下文过大用长上下文档；否则用偏好模型或默认档
func SelectModel(tiers ModelTiers, query string, contextTokens, largeContextTokens int, preferred string) string {
	switch {
	case NeedsReasoning(query) && tiers.DeepReasoning != "":
		return tiers.DeepReasoning
	case contextTokens > largeContextTokens && tiers.LargeContext != "":
		return tiers.LargeContext
	case strings.TrimSpace(preferred) != "":
		return strings.TrimSpace(preferred)
	default:
		return tiers.Default
	}
}

// FallbackModel 知识兜底使用的模型：定义类问题保留偏好模型，其余用深度推理档
func FallbackModel(tiers ModelTiers, query, preferred string) string {
	if IsDefinitional(query) {
		if p := strings.TrimSpace(preferred); p != "" {
			return p
		}
		return tiers.Default
	}
	if tiers.DeepReasoning != "" {
		return tiers.DeepReasoning
	}
	return tiers.Default
}

// EstimateTokens 粗略估算：4 字符约 1 Token
func EstimateTokens(text string) int {
	return len([]rune(text)) / 4
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
