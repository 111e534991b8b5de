// Package fuzzy 处理拼写错误、同义词与领域别名的模糊实体匹配。
package fuzzy

import (
	"regexp"
	"strings"

	"github.com/xrash/smetrics"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Similarity 三级相似度：完全相等 1.0，包含 0.8，词集 Jaccard > 0.5，否则字符编辑相似度。
// 对称：Similarity(a, b) == Similarity(b, a)。
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) > 0 && len(tb) > 0 {
		inter := 0
		for t := range ta {
			if _, ok := tb[t]; ok {
				inter++
			}
		}
		union := len(ta) + len(tb) - inter
		if j := float64(inter) / float64(union); j > 0.5 {
			return j
		}
	}
	return editSimilarity(a, b)
}

// editSimilarity 1 - Levenshtein 距离 / 较长串长度
func editSimilarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1.0
	}
	d := smetrics.WagnerFischer(a, b, 1, 1, 1)
	return 1 - float64(d)/float64(longest)
}

func tokenSet(s string) map[string]struct{} {
	words := wordPattern.FindAllString(s, -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
