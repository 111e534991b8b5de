// Package chunking 将长文本切分为 summary / topic / detail 三层片段。
package chunking

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"recall-api/internal/domain/entity"
	"recall-api/pkg/contenthash"
)

const (
	summaryPreviewRunes = 1000
	summaryPlaceholder  = "[Summary to be generated] "
)

var importanceMarkers = []string{"wichtig", "important", "problem", "lösung", "solution", "frage", "question"}

// Config 分块参数
type Config struct {
	TopicWindow        time.Duration
	TopicSegments      int
	DetailTargetTokens int
	DetailMaxTokens    int
	OverlapTokens      int
}

// DefaultConfig 默认参数：10 分钟话题窗口，750/1000 token 细节块，100 token 重叠
func DefaultConfig() Config {
	return Config{
		TopicWindow:        10 * time.Minute,
		TopicSegments:      6,
		DetailTargetTokens: 750,
		DetailMaxTokens:    1000,
		OverlapTokens:      100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TopicWindow <= 0 {
		c.TopicWindow = d.TopicWindow
	}
	if c.TopicSegments <= 0 {
		c.TopicSegments = d.TopicSegments
	}
	if c.DetailTargetTokens <= 0 {
		c.DetailTargetTokens = d.DetailTargetTokens
	}
	if c.DetailMaxTokens <= 0 {
		c.DetailMaxTokens = d.DetailMaxTokens
	}
	if c.OverlapTokens < 0 {
		c.OverlapTokens = 0
	}
	return c
}

// Segment 带时间戳或说话人的原始片段
type Segment struct {
	Start   *float64
	End     *float64
	Speaker string
	Text    string
}

// Input 分块输入
type Input struct {
	Text     string
	Timed    []Segment
	Speakers []Segment
	// Metadata 附加到每个片段
	Metadata entity.Metadata
}

// Chunker 分层分块器，无外部依赖
type Chunker struct {
	cfg Config
}

// New 创建分块器
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg.withDefaults()}
}

// EstimateTokens 粗略估算 token 数（字符数 / 4），只用于阈值比较
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}

// Chunk 切分文本，返回按序号排列的片段；序号在文档内全局唯一
func (c *Chunker) Chunk(in Input) []*entity.Chunk {
	text := strings.TrimSpace(in.Text)

	out := make([]*entity.Chunk, 0, 16)
	out = append(out, &entity.Chunk{
		Tier:       entity.TierSummary,
		Content:    summaryPlaceholderFor(text),
		Importance: 1.0,
	})

	var topics []*entity.Chunk
	if len(in.Timed) > 0 {
		topics = c.topicsByTime(in.Timed)
	} else {
		topics = c.topicsBySize(text)
	}
	for _, t := range topics {
		t.Importance = 0.8
	}
	out = append(out, topics...)

	var details []*entity.Chunk
	if len(in.Speakers) > 0 {
		details = c.detailsBySpeaker(in.Speakers)
	} else {
		details = c.detailsBySentence(text)
	}
	scoreDetails(details)
	out = append(out, details...)

	for i, ch := range out {
		ch.Ordinal = i
		ch.ContentHash = contenthash.Of(ch.Content)
		if ch.TokenCount == 0 {
			ch.TokenCount = EstimateTokens(ch.Content)
		}
		if len(in.Metadata) > 0 {
			md := make(entity.Metadata, len(in.Metadata))
			for k, v := range in.Metadata {
				md[k] = v
			}
			ch.Metadata = md
		}
	}
	return out
}

func summaryPlaceholderFor(text string) string {
	return summaryPlaceholder + truncateRunes(text, summaryPreviewRunes) + "..."
}

func (c *Chunker) topicsByTime(segs []Segment) []*entity.Chunk {
	timed := make([]Segment, 0, len(segs))
	for _, s := range segs {
		if s.Start != nil && strings.TrimSpace(s.Text) != "" {
			timed = append(timed, s)
		}
	}
	if len(timed) == 0 {
		return nil
	}
	sort.SliceStable(timed, func(i, j int) bool { return *timed[i].Start < *timed[j].Start })

	// 窗口按首个时间戳起的固定网格划分，空窗口跳过
	window := c.cfg.TopicWindow.Seconds()
	origin := *timed[0].Start
	var (
		out    []*entity.Chunk
		texts  []string
		bucket = -1
		from   float64
		to     float64
	)
	flush := func() {
		if len(texts) == 0 {
			return
		}
		out = append(out, &entity.Chunk{
			Tier:      entity.TierTopic,
			Content:   strings.Join(texts, " "),
			StartTime: entity.Float64Ptr(from),
			EndTime:   entity.Float64Ptr(to),
		})
		texts = nil
	}

	for _, s := range timed {
		start := *s.Start
		idx := int((start - origin) / window)
		if idx != bucket {
			flush()
			bucket = idx
			from = origin + float64(idx)*window
			to = start
		}
		texts = append(texts, strings.TrimSpace(s.Text))
		end := start
		if s.End != nil && *s.End > end {
			end = *s.End
		}
		if end > to {
			to = end
		}
	}
	flush()
	return out
}

func (c *Chunker) topicsBySize(text string) []*entity.Chunk {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	n := c.cfg.TopicSegments
	size := len(runes) / n
	if size == 0 {
		return []*entity.Chunk{{Tier: entity.TierTopic, Content: text}}
	}

	out := make([]*entity.Chunk, 0, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if i == n-1 {
			end = len(runes)
		}
		content := strings.TrimSpace(string(runes[start:end]))
		if content == "" {
			continue
		}
		out = append(out, &entity.Chunk{Tier: entity.TierTopic, Content: content})
	}
	return out
}

func (c *Chunker) detailsBySentence(text string) []*entity.Chunk {
	spans := splitSentences(text)
	if len(spans) == 0 {
		return nil
	}

	var (
		out     []*entity.Chunk
		cur     []span
		curToks int
		overlap int
	)
	emit := func() {
		if len(cur) == 0 {
			return
		}
		content := text[cur[0].start:cur[len(cur)-1].end]
		out = append(out, &entity.Chunk{
			Tier:       entity.TierDetail,
			Content:    content,
			TokenCount: curToks,
			Overlap:    overlap,
		})
	}

	for _, sp := range spans {
		toks := EstimateTokens(text[sp.start:sp.end])
		if len(cur) > 0 && curToks+toks > c.cfg.DetailTargetTokens {
			emit()
			carry := c.overlapTail(text, cur)
			cur = append([]span(nil), carry...)
			curToks = 0
			overlap = 0
			for _, o := range carry {
				curToks += EstimateTokens(text[o.start:o.end])
			}
			if len(carry) > 0 {
				overlap = carry[len(carry)-1].end - carry[0].start
			}
		}
		cur = append(cur, sp)
		curToks += toks
	}
	emit()
	return out
}

// overlapTail 取上一块末尾、token 总数不超过重叠上限的句子，且至少留下一句不重叠
func (c *Chunker) overlapTail(text string, prev []span) []span {
	if len(prev) < 2 || c.cfg.OverlapTokens == 0 {
		return nil
	}
	sum := 0
	first := len(prev)
	for i := len(prev) - 1; i >= 1; i-- {
		t := EstimateTokens(text[prev[i].start:prev[i].end])
		if sum+t > c.cfg.OverlapTokens {
			break
		}
		sum += t
		first = i
	}
	return prev[first:]
}

func (c *Chunker) detailsBySpeaker(segs []Segment) []*entity.Chunk {
	var (
		out     []*entity.Chunk
		texts   []string
		speaker string
		curToks int
		from    *float64
		to      *float64
	)
	emit := func() {
		if len(texts) == 0 {
			return
		}
		out = append(out, &entity.Chunk{
			Tier:       entity.TierDetail,
			Content:    strings.Join(texts, " "),
			Speaker:    entity.StringPtr(speaker),
			TokenCount: curToks,
			StartTime:  from,
			EndTime:    to,
		})
		texts = nil
		curToks = 0
		from, to = nil, nil
	}

	for _, s := range segs {
		body := strings.TrimSpace(s.Text)
		if body == "" {
			continue
		}
		toks := EstimateTokens(body)
		if toks > c.cfg.DetailMaxTokens {
			// 单个超长片段按句切分，说话人不变
			emit()
			for _, part := range c.detailsBySentence(body) {
				part.Speaker = entity.StringPtr(s.Speaker)
				part.StartTime, part.EndTime = s.Start, s.End
				out = append(out, part)
			}
			continue
		}
		if len(texts) > 0 && (s.Speaker != speaker || curToks+toks > c.cfg.DetailMaxTokens) {
			emit()
		}
		if len(texts) == 0 {
			speaker = s.Speaker
			from = s.Start
		}
		texts = append(texts, body)
		curToks += toks
		if s.End != nil {
			to = s.End
		} else if s.Start != nil {
			to = s.Start
		}
	}
	emit()
	return out
}

// scoreDetails 位置得分在首尾最高、中间最低，与内容得分取平均
func scoreDetails(details []*entity.Chunk) {
	n := len(details)
	mid := float64(n-1) / 2
	for i, d := range details {
		position := 1.0
		if mid > 0 {
			position = abs(float64(i)-mid) / mid
		}
		content := 0.5
		lower := strings.ToLower(d.Content)
		for _, m := range importanceMarkers {
			if strings.Contains(lower, m) {
				content = 0.8
				break
			}
		}
		d.Importance = (position + content) / 2
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
