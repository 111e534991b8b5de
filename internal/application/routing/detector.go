package routing

import (
	"regexp"
	"strings"
)

// DefaultFullDocumentIndicators 需要完整原文的提示词
var DefaultFullDocumentIndicators = []string{
	"gesamt", "vollständig", "komplett", "alles",
	"detail", "genau", "exakt", "wörtlich",
	"komplette transkript", "ganze gespräch",
	"was wurde alles", "alle themen",
	"zusammenfassung des gesamten",
	"complete", "all of it", "word for word", "everything", "entire",
}

var (
	demonstrativePattern = regexp.MustCompile(`(?:dieses|diesem|diese|this)\s+(?:gespräch|transkript|video|interview|conversation|transcript)`)
	exhaustiveWords      = []string{"alles", "gesamt", "komplett", "detail", "everything", "all"}
)

// FullDocumentDetector 判断查询是否需要整篇原文
type FullDocumentDetector struct {
	indicators []string
}

// NewFullDocumentDetector 创建检测器，indicators 为空时使用默认词表
func NewFullDocumentDetector(indicators []string) *FullDocumentDetector {
	if len(indicators) == 0 {
		indicators = DefaultFullDocumentIndicators
	}
	d := &FullDocumentDetector{}
	for _, ind := range indicators {
		if ind = strings.ToLower(strings.TrimSpace(ind)); ind != "" {
			d.indicators = append(d.indicators, ind)
		}
	}
	return d
}

// NeedsFullDocument 查询是否要求穷尽细节
func (d *FullDocumentDetector) NeedsFullDocument(query string) bool {
	lower := strings.ToLower(query)
	for _, ind := range d.indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	if demonstrativePattern.MatchString(lower) {
		for _, w := range exhaustiveWords {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}
