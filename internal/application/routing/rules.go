// Package routing 将查询分类为检索策略，并执行对应的结构化检索。
package routing

import (
	"regexp"
	"sort"
	"strings"

	"recall-api/internal/domain/entity"
)

// Rule 单条意图规则，按顺序尝试，先命中者优先
type Rule interface {
	Name() string
	TryMatch(query string) (entity.QueryIntent, bool)
}

// DefaultMediaWords 默认媒体词
var DefaultMediaWords = []string{"video", "artikel", "gespräch", "transkript", "transcript", "article", "conversation", "interview"}

// DefaultRules 默认规则顺序：文档引用 > 说话人 > 时间 > 通用
func DefaultRules(mediaWords []string) []Rule {
	return []Rule{
		NewDocumentRefRule(mediaWords),
		NewSpeakerRefRule(),
		NewTemporalRule(nil),
		GeneralRule{},
	}
}

var (
	authorPattern = regexp.MustCompile(`(?:^|\s)(?:von|by|mit|with)\s+([\p{L}\p{N}_-]+)`)
	topicPattern  = regexp.MustCompile(`(?:^|\s)(?:zum thema|über|about|zu)\s+(.+?)\s*(?:[.?!]|$)`)
)

// DocumentRefRule 媒体引用：“video von X über Y”
type DocumentRefRule struct {
	mediaWords []string
}

// NewDocumentRefRule 创建文档引用规则
func NewDocumentRefRule(mediaWords []string) *DocumentRefRule {
	if len(mediaWords) == 0 {
		mediaWords = DefaultMediaWords
	}
	words := make([]string, 0, len(mediaWords))
	for _, w := range mediaWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return &DocumentRefRule{mediaWords: words}
}

func (r *DocumentRefRule) Name() string { return "document_ref" }

func (r *DocumentRefRule) TryMatch(query string) (entity.QueryIntent, bool) {
	lower := strings.ToLower(query)

	docType := ""
	for _, w := range r.mediaWords {
		if strings.Contains(lower, w) {
			docType = w
			break
		}
	}
	if docType == "" {
		return entity.QueryIntent{}, false
	}

	slots := entity.IntentSlots{DocType: docType}
	if m := authorPattern.FindStringSubmatch(lower); m != nil {
		slots.Author = cleanSlot(m[1])
	}
	if m := topicPattern.FindStringSubmatch(lower); m != nil {
		slots.Topic = cleanSlot(m[1])
	}
	return entity.QueryIntent{
		Strategy:   entity.StrategyDocumentRef,
		Confidence: 0.9,
		Slots:      slots,
		Rule:       r.Name(),
	}, true
}

func cleanSlot(s string) string {
	return strings.Trim(s, " .?!,\"'")
}

const attributionVerbs = `said|say|says|mentioned|mention|stated|told|sagte|sagt|meinte|meint|erwähnte|erwähnt|gesagt`

var speakerPatterns = []*regexp.Regexp{
	// "Nina said", "Nina hat gesagt"
	regexp.MustCompile(`(\p{Lu}[\p{L}\p{N}_-]*)\s+(?:(?:hat|has|have|did)\s+)?(?:` + attributionVerbs + `)(?:[\s.,?!]|$)`),
	// "Was hat Nina über X gesagt", "what did Nina say"
	regexp.MustCompile(`(?i:hat|has|did)\s+(\p{Lu}[\p{L}\p{N}_-]*)\s+(?:.*\s)?(?:` + attributionVerbs + `)(?:[\s.,?!]|$)`),
	// "Was sagte Max"
	regexp.MustCompile(`(?:sagte|meinte|erwähnte|sagt|meint)\s+(\p{Lu}[\p{L}\p{N}_-]*)`),
}

// 句首大写的疑问词与代词不视为说话人
var nonSpeakers = map[string]struct{}{
	"was": {}, "wer": {}, "wie": {}, "wann": {}, "warum": {}, "wo": {}, "welche": {}, "welcher": {},
	"er": {}, "sie": {}, "es": {}, "man": {}, "der": {}, "die": {}, "das": {}, "ich": {}, "du": {},
	"what": {}, "who": {}, "how": {}, "when": {}, "why": {}, "where": {}, "which": {},
	"he": {}, "she": {}, "it": {}, "they": {}, "someone": {}, "i": {}, "you": {}, "the": {},
}

// SpeakerRefRule 说话人引用：大写名字 + 归属动词
type SpeakerRefRule struct{}

// NewSpeakerRefRule 创建说话人规则
func NewSpeakerRefRule() *SpeakerRefRule { return &SpeakerRefRule{} }

func (r *SpeakerRefRule) Name() string { return "speaker_ref" }

func (r *SpeakerRefRule) TryMatch(query string) (entity.QueryIntent, bool) {
	for _, p := range speakerPatterns {
		for _, m := range p.FindAllStringSubmatch(query, -1) {
			name := cleanSlot(m[1])
			if _, skip := nonSpeakers[strings.ToLower(name)]; skip || name == "" {
				continue
			}
			return entity.QueryIntent{
				Strategy:   entity.StrategySpeakerRef,
				Confidence: 0.85,
				Slots:      entity.IntentSlots{Speaker: name},
				Rule:       r.Name(),
			}, true
		}
	}
	return entity.QueryIntent{}, false
}

// DefaultRelativeDays 相对时间短语 -> 天数
var DefaultRelativeDays = map[string]int{
	"heute":                0,
	"today":                0,
	"gestern":              1,
	"yesterday":            1,
	"vorgestern":           2,
	"day before yesterday": 2,
	"letzte woche":         7,
	"letzten woche":        7,
	"last week":            7,
	"neulich":              14,
	"recently":             14,
	"letzten monat":        30,
	"letzter monat":        30,
	"last month":           30,
}

type phrase struct {
	text string
	days int
}

// TemporalRule 相对时间短语，最长短语优先匹配
type TemporalRule struct {
	phrases []phrase
}

// NewTemporalRule 创建时间规则，table 为空时使用默认表
func NewTemporalRule(table map[string]int) *TemporalRule {
	if len(table) == 0 {
		table = DefaultRelativeDays
	}
	phrases := make([]phrase, 0, len(table))
	for text, days := range table {
		phrases = append(phrases, phrase{text: strings.ToLower(text), days: days})
	}
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i].text) != len(phrases[j].text) {
			return len(phrases[i].text) > len(phrases[j].text)
		}
		return phrases[i].text < phrases[j].text
	})
	return &TemporalRule{phrases: phrases}
}

func (r *TemporalRule) Name() string { return "temporal" }

func (r *TemporalRule) TryMatch(query string) (entity.QueryIntent, bool) {
	lower := strings.ToLower(query)
	for _, p := range r.phrases {
		if strings.Contains(lower, p.text) {
			days := p.days
			return entity.QueryIntent{
				Strategy:   entity.StrategyTemporal,
				Confidence: 0.8,
				Slots:      entity.IntentSlots{DaysAgo: &days},
				Rule:       r.Name(),
			}, true
		}
	}
	return entity.QueryIntent{}, false
}

// GeneralRule 兜底规则，总是命中
type GeneralRule struct{}

func (GeneralRule) Name() string { return "general" }

func (GeneralRule) TryMatch(string) (entity.QueryIntent, bool) {
	return entity.GeneralIntent(), true
}
