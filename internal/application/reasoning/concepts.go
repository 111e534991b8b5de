package reasoning

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"recall-api/internal/domain/entity"
)

const (
	maxDocumentConcepts = 10
	conceptChunkLimit   = 10
	minConceptRunes     = 4
)

var (
	wordPattern       = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	properNounPattern = regexp.MustCompile(`\p{Lu}\p{Ll}+(?:[ \t]+\p{Lu}\p{Ll}+)*`)

	// 文档概念：技术后缀与德语行业后缀
	documentSuffixes = []string{
		"automation", "system", "service", "platform", "tool",
		"kräfte", "agentur", "vermittlung", "dienst",
	}
	// 查询概念额外包含问题/需求类词汇
	querySuffixes = []string{
		"server", "tool", "system", "platform", "automation", "integration",
		"lösung", "problem", "anforderung", "bedarf",
	}

	// 句首大写的功能词不算实体
	capitalizedStopwords = map[string]struct{}{
		"was": {}, "wer": {}, "wie": {}, "wo": {}, "wann": {}, "warum": {}, "welche": {}, "welcher": {},
		"der": {}, "die": {}, "das": {}, "den": {}, "dem": {}, "ein": {}, "eine": {}, "einen": {},
		"ich": {}, "du": {}, "er": {}, "sie": {}, "wir": {}, "ihr": {}, "es": {},
		"und": {}, "oder": {}, "aber": {}, "dann": {}, "wenn": {}, "also": {}, "auch": {}, "noch": {},
		"dass": {}, "nicht": {}, "hat": {}, "haben": {}, "ist": {}, "sind": {}, "wird": {},
		"what": {}, "who": {}, "how": {}, "why": {}, "when": {}, "where": {}, "which": {},
		"the": {}, "this": {}, "that": {}, "there": {}, "they": {}, "with": {}, "and": {},
		"did": {}, "does": {}, "tell": {}, "show": {}, "can": {}, "could": {},
	}
)

// extractEntities 查询中的首字母大写片段与已知实体，按出现顺序去重
func extractEntities(text string, known []string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	for _, m := range properNounPattern.FindAllString(text, -1) {
		if m = trimStopwords(m); m != "" {
			add(m)
		}
	}
	lower := strings.ToLower(text)
	for _, k := range known {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			add(k)
		}
	}
	return out
}

// extractQueryConcepts 查询中以技术或需求词结尾的词，小写
func extractQueryConcepts(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if !hasAnySuffix(w, querySuffixes, false) {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// documentConcepts 从主题片段抽取高频概念（专有名词与后缀词），最多 10 个
func documentConcepts(chunks []*entity.Chunk) []string {
	source := make([]*entity.Chunk, 0, conceptChunkLimit)
	for _, c := range chunks {
		if c.Tier == entity.TierTopic {
			source = append(source, c)
		}
	}
	if len(source) == 0 {
		source = chunks
	}
	if len(source) > conceptChunkLimit {
		source = source[:conceptChunkLimit]
	}

	counts := make(map[string]int)
	var order []string
	add := func(s string) {
		s = strings.ToLower(s)
		if utf8.RuneCountInString(s) < minConceptRunes {
			return
		}
		if _, stop := capitalizedStopwords[s]; stop {
			return
		}
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
	}
	for _, c := range source {
		for _, m := range properNounPattern.FindAllString(c.Content, -1) {
			add(trimStopwords(m))
		}
		for _, w := range wordPattern.FindAllString(strings.ToLower(c.Content), -1) {
			if hasAnySuffix(w, documentSuffixes, true) {
				add(w)
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxDocumentConcepts {
		order = order[:maxDocumentConcepts]
	}
	return order
}

// trimStopwords 去掉短语开头的大写功能词，如句首冠词
func trimStopwords(phrase string) string {
	words := strings.Fields(phrase)
	for len(words) > 0 {
		if _, stop := capitalizedStopwords[strings.ToLower(words[0])]; !stop {
			break
		}
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// hasAnySuffix strict 为 true 时要求后缀前至少还有一个字符
func hasAnySuffix(word string, suffixes []string, strict bool) bool {
	for _, s := range suffixes {
		if !strings.HasSuffix(word, s) {
			continue
		}
		if !strict || len(word) > len(s) {
			return true
		}
	}
	return false
}

// intersect 按 a 的顺序返回同时出现在 b 中的元素
func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
			delete(set, s)
		}
	}
	return out
}

func firstN(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
