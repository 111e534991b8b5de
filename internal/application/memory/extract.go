package memory

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const minKeywordRunes = 4

var (
	namePattern  = regexp.MustCompile(`\p{Lu}\p{Ll}+(?:\s+\p{Lu}\p{Ll}+)*`)
	quotePattern = regexp.MustCompile(`["“„']([^"“”„']+)["”“']`)
	camelPattern = regexp.MustCompile(`\b[A-Za-z]+(?:[A-Z][a-z]+)+\b`)
	kebabPattern = regexp.MustCompile(`\b[a-z]+(?:-[a-z]+)+\b`)
	wordPattern  = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	greetings    = []string{"hallo", "hi", "hey", "guten tag", "servus", "moin", "hello", "good morning"}

	keywordStopwords = map[string]struct{}{
		"der": {}, "die": {}, "das": {}, "und": {}, "oder": {}, "aber": {}, "mit": {}, "von": {}, "zu": {},
		"in": {}, "auf": {}, "an": {}, "für": {}, "bei": {}, "ist": {}, "sind": {}, "war": {}, "waren": {},
		"the": {}, "a": {}, "and": {}, "or": {}, "but": {}, "with": {}, "from": {}, "to": {},
		"eine": {}, "einen": {}, "nicht": {}, "auch": {}, "noch": {}, "dass": {}, "habe": {}, "hast": {},
		"what": {}, "that": {}, "this": {}, "have": {}, "about": {},
	}
)

// ExtractEntities 首字母大写的名字、引号内容、驼峰与连字符技术词，按出现顺序去重
func ExtractEntities(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, m := range namePattern.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range quotePattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range camelPattern.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range kebabPattern.FindAllString(text, -1) {
		add(m)
	}
	return out
}

// Keywords 小写、去停用词、长度大于 3 的词
func Keywords(text string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(w) < minKeywordRunes {
			continue
		}
		if _, stop := keywordStopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// KeywordOverlap 回答覆盖原始问题关键词的比例；原始问题没有关键词时视为完全覆盖
func KeywordOverlap(original, answer string) float64 {
	want := make(map[string]struct{})
	for _, k := range Keywords(original) {
		want[k] = struct{}{}
	}
	if len(want) == 0 {
		return 1
	}
	have := make(map[string]struct{})
	for _, k := range Keywords(answer) {
		have[k] = struct{}{}
	}
	hit := 0
	for k := range want {
		if _, ok := have[k]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}

// IsGreeting 以问候语开头的短消息
func IsGreeting(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if utf8.RuneCountInString(t) >= 20 {
		return false
	}
	for _, g := range greetings {
		if strings.HasPrefix(t, g) {
			return true
		}
	}
	return false
}

// ShouldRemind 检索次数达到下限且回答与原始问题关键词重合度低于上限时提醒
func ShouldRemind(attempts int, overlap float64, minAttempts int, maxOverlap float64) bool {
	return attempts >= minAttempts && overlap < maxOverlap
}
