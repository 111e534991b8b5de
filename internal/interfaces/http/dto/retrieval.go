package dto

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
)

// SearchResult 单条检索命中
type SearchResult struct {
	ChunkID       string                `json:"chunk_id"`
	DocumentID    string                `json:"document_id"`
	DocumentTitle string                `json:"document_title"`
	SourceKind    entity.SourceKind     `json:"source_kind"`
	DocumentDate  time.Time             `json:"document_date"`
	Tier          entity.Tier           `json:"tier"`
	Content       string                `json:"content"`
	Speaker       string                `json:"speaker,omitempty"`
	StartTime     *float64              `json:"start_time,omitempty"`
	EndTime       *float64              `json:"end_time,omitempty"`
	Score         float64               `json:"score"`
	Scores        entity.ScoreBreakdown `json:"scores"`
	Prev          string                `json:"prev,omitempty"`
	Next          string                `json:"next,omitempty"`
}

// SearchDebug 检索阶段信息
type SearchDebug struct {
	LexicalHits   int               `json:"lexical_hits"`
	DenseHits     int               `json:"dense_hits"`
	Candidates    int               `json:"candidates"`
	Reranked      bool              `json:"reranked"`
	StageMillis   map[string]int64  `json:"stage_ms,omitempty"`
	DegradedSteps map[string]string `json:"degraded_steps,omitempty"`
}

// SearchResponse 检索响应
type SearchResponse struct {
	Query     string          `json:"query,omitempty"`
	Speaker   string          `json:"speaker,omitempty"`
	Period    string          `json:"period,omitempty"`
	StartDate *time.Time      `json:"start_date,omitempty"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	ElapsedMs int64           `json:"elapsed_ms"`
	Debug     *SearchDebug    `json:"debug,omitempty"`
}

// ToSearchResponse 将检索输出转换为响应 DTO
func ToSearchResponse(out *retrieval.SearchOutput, started time.Time) *SearchResponse {
	resp := &SearchResponse{Results: make([]*SearchResult, 0)}
	if out != nil {
		for _, r := range out.Results {
			if item := toSearchResult(r); item != nil {
				resp.Results = append(resp.Results, item)
			}
		}
		if d := out.Debug; d != nil {
			resp.Debug = &SearchDebug{
				LexicalHits:   d.LexicalHits,
				DenseHits:     d.DenseHits,
				Candidates:    d.Candidates,
				Reranked:      d.Reranked,
				StageMillis:   d.StageMillis,
				DegradedSteps: d.DegradedSteps,
			}
		}
	}
	resp.Total = len(resp.Results)
	resp.ElapsedMs = time.Since(started).Milliseconds()
	return resp
}

func toSearchResult(r *entity.RetrievalResult) *SearchResult {
	if r == nil || r.Chunk == nil {
		return nil
	}
	item := &SearchResult{
		ChunkID:       r.Chunk.ID,
		DocumentID:    r.Chunk.DocumentID,
		DocumentTitle: r.DocumentTitle,
		SourceKind:    r.SourceKind,
		DocumentDate:  r.DocumentDate,
		Tier:          r.Chunk.Tier,
		Content:       r.Chunk.Content,
		Speaker:       r.Chunk.SpeakerName(),
		StartTime:     r.Chunk.StartTime,
		EndTime:       r.Chunk.EndTime,
		Score:         r.Score,
		Scores:        r.Scores,
	}
	if r.Prev != nil {
		item.Prev = r.Prev.Content
	}
	if r.Next != nil {
		item.Next = r.Next.Content
	}
	return item
}

// QuickSource 语音回答的来源
type QuickSource struct {
	Title string            `json:"title"`
	Type  entity.SourceKind `json:"type"`
	Date  time.Time         `json:"date"`
}

// QuickSearchResponse 语音助手的简短回答
type QuickSearchResponse struct {
	Query             string       `json:"query"`
	Answer            string       `json:"answer"`
	Confidence        float64      `json:"confidence"`
	Source            *QuickSource `json:"source,omitempty"`
	AdditionalResults int          `json:"additional_results"`
}

// QuickNoResultAnswer 无结果时的语音回答
const QuickNoResultAnswer = "Ich habe keine relevanten Informationen zu Ihrer Anfrage gefunden."

// VoiceAnswerMaxRunes 语音回答最大字符数
const VoiceAnswerMaxRunes = 200

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	markdownMarkers = regexp.MustCompile("[*_#`]")
)

// FormatForVoice 去掉 URL 与 Markdown 标记并截断
func FormatForVoice(text string, maxRunes int) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = markdownMarkers.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		text = strings.TrimSpace(string([]rune(text)[:maxRunes])) + "..."
	}
	return text
}

// ToQuickSearchResponse 用首条命中生成语音回答
func ToQuickSearchResponse(query string, out *retrieval.SearchOutput) *QuickSearchResponse {
	resp := &QuickSearchResponse{Query: query, Answer: QuickNoResultAnswer}
	if out == nil || len(out.Results) == 0 || out.Results[0].Chunk == nil {
		return resp
	}
	top := out.Results[0]
	resp.Answer = FormatForVoice(top.Chunk.Content, VoiceAnswerMaxRunes)
	resp.Confidence = top.Score
	resp.Source = &QuickSource{
		Title: top.DocumentTitle,
		Type:  top.SourceKind,
		Date:  top.DocumentDate,
	}
	resp.AdditionalResults = len(out.Results) - 1
	return resp
}
