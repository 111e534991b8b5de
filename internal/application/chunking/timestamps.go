package chunking

import (
	"regexp"
	"strconv"
	"strings"
)

// 形如 [00:01:23]、(1:23)
var timestampPattern = regexp.MustCompile(`[\[\(](\d{1,2}):(\d{2})(?::(\d{2}))?[\]\)]`)

// ExtractTimestamps 从带时间戳标记的转写文本中提取时间片段，没有标记时返回 nil
func ExtractTimestamps(transcript string) []Segment {
	locs := timestampPattern.FindAllStringSubmatchIndex(transcript, -1)
	if len(locs) == 0 {
		return nil
	}

	var out []Segment
	for i, loc := range locs {
		end := len(transcript)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(transcript[loc[1]:end])
		if body == "" {
			continue
		}
		a, _ := strconv.Atoi(transcript[loc[2]:loc[3]])
		b, _ := strconv.Atoi(transcript[loc[4]:loc[5]])
		var seconds int
		if loc[6] >= 0 {
			c, _ := strconv.Atoi(transcript[loc[6]:loc[7]])
			seconds = a*3600 + b*60 + c
		} else {
			seconds = a*60 + b
		}
		start := float64(seconds)
		out = append(out, Segment{Start: &start, Text: body})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// StripTimestamps 去掉时间戳标记，保留正文
func StripTimestamps(transcript string) string {
	return strings.Join(strings.Fields(timestampPattern.ReplaceAllString(transcript, " ")), " ")
}
