package fuzzy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"recall-api/internal/domain/entity"
)

// MatchKind 匹配方式
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchFuzzy    MatchKind = "fuzzy"
	MatchAlias    MatchKind = "alias"
	MatchSemantic MatchKind = "semantic"
)

// Scope 实体搜索范围
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeDocuments Scope = "documents"
	ScopeSpeakers  Scope = "speakers"
)

const (
	titleMatchFloor   = 0.5
	speakerMatchFloor = 0.6
	maxEntityMatches  = 5
	summaryPrefix     = 200
	entityScanLimit   = 5000
)

// EntityMatch 实体匹配结果
type EntityMatch struct {
	Original   string    `json:"original"`
	Matched    string    `json:"matched"`
	Confidence float64   `json:"confidence"`
	Kind       MatchKind `json:"kind"`
}

// ScoredDocument 带相关度的文档
type ScoredDocument struct {
	Document *entity.Document
	Score    float64
}

// DocumentSource 文档候选来源
type DocumentSource interface {
	// SearchByTerms 标题、摘要或任一片段包含任一词项的文档
	SearchByTerms(ctx context.Context, terms []string, limit int) ([]*entity.Document, error)
	ListTitles(ctx context.Context, limit int) ([]string, error)
}

// SpeakerSource 说话人来源
type SpeakerSource interface {
	ListDistinctSpeakers(ctx context.Context, limit int) ([]string, error)
}

// Options 匹配参数
type Options struct {
	Threshold      float64
	CandidateLimit int
}

// Matcher 模糊实体匹配器
type Matcher struct {
	docs     DocumentSource
	speakers SpeakerSource
	aliases  *AliasTable
	opts     Options
}

// NewMatcher 创建匹配器
func NewMatcher(docs DocumentSource, speakers SpeakerSource, aliases *AliasTable, opts Options) *Matcher {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.6
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = 10
	}
	return &Matcher{docs: docs, speakers: speakers, aliases: aliases, opts: opts}
}

// Threshold 默认阈值
func (m *Matcher) Threshold() float64 {
	return m.opts.Threshold
}

// Aliases 返回别名表
func (m *Matcher) Aliases() *AliasTable {
	return m.aliases
}

// ExpandQuery 抽取并展开查询词
func (m *Matcher) ExpandQuery(query string) []string {
	return m.aliases.Expand(ExtractTerms(query))
}

// FuzzySearchDocuments 按展开后的词项召回文档并打分，仅返回得分 >= threshold 的文档，按得分降序
func (m *Matcher) FuzzySearchDocuments(ctx context.Context, query string, threshold float64) ([]ScoredDocument, error) {
	if threshold <= 0 {
		threshold = m.opts.Threshold
	}
	terms := m.ExpandQuery(query)
	if len(terms) == 0 || m.docs == nil {
		return nil, nil
	}

	docs, err := m.docs.SearchByTerms(ctx, terms, m.opts.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("fuzzy candidate lookup: %w", err)
	}

	out := make([]ScoredDocument, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		score := RelevanceScore(query, d.Title, d.Summary)
		if score >= threshold {
			out = append(out, ScoredDocument{Document: d, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// FindSimilarEntities 在文档标题、说话人和别名表中寻找相似实体，返回置信度最高的 5 个
func (m *Matcher) FindSimilarEntities(ctx context.Context, name string, scope Scope) ([]EntityMatch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if scope == "" {
		scope = ScopeAll
	}

	var matches []EntityMatch
	if (scope == ScopeAll || scope == ScopeDocuments) && m.docs != nil {
		titles, err := m.docs.ListTitles(ctx, entityScanLimit)
		if err != nil {
			return nil, fmt.Errorf("list titles: %w", err)
		}
		matches = append(matches, matchCandidates(name, titles, titleMatchFloor)...)
	}
	if (scope == ScopeAll || scope == ScopeSpeakers) && m.speakers != nil {
		speakers, err := m.speakers.ListDistinctSpeakers(ctx, entityScanLimit)
		if err != nil {
			return nil, fmt.Errorf("list speakers: %w", err)
		}
		matches = append(matches, matchCandidates(name, speakers, speakerMatchFloor)...)
	}
	matches = append(matches, m.aliases.Resolve(name)...)

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Confidence > matches[j].Confidence })
	if len(matches) > maxEntityMatches {
		matches = matches[:maxEntityMatches]
	}
	return matches, nil
}

func matchCandidates(name string, candidates []string, floor float64) []EntityMatch {
	var out []EntityMatch
	for _, c := range candidates {
		sim := Similarity(name, c)
		if sim <= floor {
			continue
		}
		kind := MatchFuzzy
		if sim == 1.0 {
			kind = MatchExact
		}
		out = append(out, EntityMatch{Original: name, Matched: c, Confidence: sim, Kind: kind})
	}
	return out
}

// RelevanceScore 文档相关度 = 0.6*标题相似度 + 每个出现在标题中的查询词 0.1 + 0.3*摘要前 200 字相似度，上限 1
func RelevanceScore(query, title, summary string) float64 {
	score := 0.6 * Similarity(query, title)

	lowerTitle := strings.ToLower(title)
	for _, term := range ExtractTerms(query) {
		if strings.Contains(lowerTitle, term) {
			score += 0.1
		}
	}
	if summary != "" {
		score += 0.3 * Similarity(query, prefixRunes(summary, summaryPrefix))
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func prefixRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
