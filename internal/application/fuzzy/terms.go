package fuzzy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	stopwords = map[string]struct{}{
		"das": {}, "der": {}, "die": {}, "ein": {}, "eine": {}, "gibt": {}, "es": {}, "doch": {},
		"was": {}, "war": {}, "nochmal": {}, "mal": {}, "mit": {}, "über": {}, "zu": {}, "von": {},
		"the": {}, "and": {}, "about": {}, "with": {}, "what": {}, "from": {}, "that": {},
	}
	quotedPattern      = regexp.MustCompile(`["']([^"']+)["']`)
	capitalizedPattern = regexp.MustCompile(`\p{Lu}\p{Ll}+(?:\s+\p{Lu}\p{Ll}+)*`)
)

// ExtractTerms 抽取查询中的候选词：去停用词后的词（长度 > 2）、引号短语、首字母大写的片段。
// 结果小写、去重并排序。
func ExtractTerms(query string) []string {
	set := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		if isStopword(w) || utf8.RuneCountInString(w) <= 2 {
			continue
		}
		set[w] = struct{}{}
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(query, -1) {
		if q := normalize(m[1]); q != "" {
			set[q] = struct{}{}
		}
	}
	for _, m := range capitalizedPattern.FindAllString(query, -1) {
		if c := normalize(m); !isStopword(c) {
			set[c] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func isStopword(s string) bool {
	_, ok := stopwords[s]
	return ok
}
