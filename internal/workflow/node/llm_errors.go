package node

import "strings"

// IsModelNotFoundError 提供方返回的"模型不存在/无权限"类错误
func IsModelNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "model_not_found"):
		return true
	case strings.Contains(msg, "model") && strings.Contains(msg, "does not exist"):
		return true
	case strings.Contains(msg, "unknown model"):
		return true
	case strings.Contains(msg, "model") && strings.Contains(msg, "not supported"):
		return true
	default:
		return false
	}
}
