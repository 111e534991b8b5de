package retrieval

import (
	"fmt"
	"strings"

	"recall-api/internal/domain/entity"
)

// BuildPromptContext 将召回结果格式化为可直接注入 Prompt 的块。
// 约束：尽量短，避免把 score 等调试信息塞进 Prompt。
func BuildPromptContext(results []*entity.RetrievalResult, maxResults int, maxRunesPerResult int) string {
	if len(results) == 0 {
		return ""
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	n := len(results)
	if n > maxResults {
		n = maxResults
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		r := results[i]
		if r == nil || r.Chunk == nil {
			continue
		}
		ref := strings.TrimSpace(r.DocumentTitle)
		if ref == "" {
			ref = "Unbekannte Quelle"
		}
		if r.SourceKind != "" {
			ref += " · " + string(r.SourceKind)
		}
		if !r.DocumentDate.IsZero() {
			ref += " · " + r.DocumentDate.Format("2006-01-02")
		}
		if s := r.Chunk.SpeakerName(); s != "" {
			ref += " · " + s
		}

		txt := strings.TrimSpace(r.Chunk.Content)
		if maxRunesPerResult > 0 {
			txt = TruncateRunes(CompactOneLine(txt), maxRunesPerResult)
		}
		if txt == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%d] (%s)\n%s", i+1, ref, txt))
	}
	return strings.TrimSpace(strings.Join(lines, "\n\n"))
}

// CompactOneLine 折叠换行与多余空白
func CompactOneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateRunes 按字符截断，超出时追加省略号
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
