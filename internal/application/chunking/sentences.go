package chunking

import (
	"unicode"
	"unicode/utf8"
)

type span struct {
	start int
	end   int
}

// splitSentences 在 . ! ? 后接空白处断句，返回不含首尾空白的字节区间
func splitSentences(text string) []span {
	var out []span
	start := skipSpace(text, 0)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i >= len(text) {
			break
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(next) {
			continue
		}
		if i > start {
			out = append(out, span{start: start, end: i})
		}
		start = skipSpace(text, i)
		i = start
	}
	end := len(text)
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	if end > start {
		out = append(out, span{start: start, end: end})
	}
	return out
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}
