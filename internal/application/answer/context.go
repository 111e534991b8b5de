package answer

import (
	"regexp"
	"strings"
	"unicode"

	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
	"recall-api/pkg/contenthash"
)

const (
	conversationTurns    = 5
	conversationRunes    = 200
	judgeContextChunks   = 5
	judgeContextRunes    = 100
	sourceSnippetRunes   = 200
	insightTitle         = "Cross-Context Analysis"
	insightScore         = 0.9
	emptyContextNote     = "Hinweis: In der Wissensdatenbank wurde kein passender Kontext zu dieser Frage gefunden."
	previousAttemptLabel = "Erster Antwortversuch (unzureichend):\n"
)

var wordWithSpace = regexp.MustCompile(`\S+\s*`)

// Dedupe 按内容哈希去重，保留首次出现的结果
func Dedupe(groups ...[]*entity.RetrievalResult) []*entity.RetrievalResult {
	seen := make(map[string]struct{})
	var out []*entity.RetrievalResult
	for _, g := range groups {
		for _, r := range g {
			if r == nil || r.Chunk == nil {
				continue
			}
			key := r.Chunk.ContentHash
			if key == "" {
				key = contenthash.Of(r.Chunk.Content)
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// FormatConversation 最近 5 轮对话，每轮截断到 200 字符
func FormatConversation(history []entity.Turn) string {
	if len(history) == 0 {
		return ""
	}
	turns := history
	if len(turns) > conversationTurns {
		turns = turns[len(turns)-conversationTurns:]
	}
	lines := make([]string, 0, len(turns)+1)
	lines = append(lines, "Bisheriger Gesprächsverlauf:")
	for _, t := range turns {
		content := retrieval.TruncateRunes(retrieval.CompactOneLine(t.Content), conversationRunes)
		if content == "" {
			continue
		}
		lines = append(lines, string(t.Role)+": "+content)
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// judgeContext 前 5 个片段各取 100 字符
func judgeContext(results []*entity.RetrievalResult) string {
	var lines []string
	for _, r := range results {
		if len(lines) == judgeContextChunks {
			break
		}
		if r == nil || r.Chunk == nil {
			continue
		}
		text := []rune(retrieval.CompactOneLine(r.Chunk.Content))
		if len(text) > judgeContextRunes {
			text = text[:judgeContextRunes]
		}
		lines = append(lines, string(text)+"...")
	}
	return strings.Join(lines, "\n")
}

// insightResult 把跨文档洞察包装成一个伪片段，置于上下文最前
func insightResult(in *entity.CrossContextInsight) *entity.RetrievalResult {
	var b strings.Builder
	b.WriteString("Cross-Context Insights:")
	for _, s := range in.Insights {
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	if len(in.RelatedDocuments) > 0 {
		titles := make([]string, 0, len(in.RelatedDocuments))
		for _, d := range in.RelatedDocuments {
			titles = append(titles, d.Title)
		}
		b.WriteString("\nVerwandte Dokumente: ")
		b.WriteString(strings.Join(titles, ", "))
	}
	return &entity.RetrievalResult{
		Chunk: &entity.Chunk{
			Tier:       entity.TierTopic,
			Content:    b.String(),
			Importance: insightScore,
		},
		DocumentTitle: insightTitle,
		Score:         insightScore,
	}
}

// BuildSources 来源列表，片段截断到 200 字符
func BuildSources(results []*entity.RetrievalResult) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		if r == nil || r.Chunk == nil {
			continue
		}
		out = append(out, Source{
			Title:   r.DocumentTitle,
			Type:    r.SourceKind,
			Date:    r.DocumentDate,
			Snippet: retrieval.TruncateRunes(retrieval.CompactOneLine(r.Chunk.Content), sourceSnippetRunes),
			Speaker: r.Chunk.SpeakerName(),
			Score:   r.Score,
		})
	}
	return out
}

// chunkPieces 按词分段用于流式输出，拼接后与原文一致
func chunkPieces(text string, words int) []string {
	tokens := wordWithSpace.FindAllString(text, -1)
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, len(tokens)/words+1)
	for i := 0; i < len(tokens); i += words {
		out = append(out, strings.Join(tokens[i:min(i+words, len(tokens))], ""))
	}
	if lead := text[:len(text)-len(strings.TrimLeftFunc(text, unicode.IsSpace))]; lead != "" {
		out[0] = lead + out[0]
	}
	return out
}
