package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"recall-api/internal/application/fuzzy"
	"recall-api/internal/domain/entity"
	"recall-api/pkg/logger"
	"recall-api/pkg/tracer"
)

// DocumentLookup 文档查询端口
type DocumentLookup interface {
	SearchByTitle(ctx context.Context, terms []string, limit int) ([]*entity.Document, error)
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Document, error)
}

// ChunkLookup 片段查询端口
type ChunkLookup interface {
	ListByDocument(ctx context.Context, documentID string, tiers []entity.Tier, limit int) ([]*entity.Chunk, error)
	FindBySpeaker(ctx context.Context, name string, limit int) ([]*entity.Chunk, error)
	FindCreatedBetween(ctx context.Context, start, end time.Time, perDocument, limit int) ([]*entity.Chunk, error)
}

// Options 路由参数
type Options struct {
	DocumentLookupLimit int
	SpeakerChunkLimit   int
	TemporalChunkLimit  int
	// StrongMatch 文档候选视为强匹配的最低相关度
	StrongMatch float64
}

func (o Options) withDefaults() Options {
	if o.DocumentLookupLimit <= 0 {
		o.DocumentLookupLimit = 5
	}
	if o.SpeakerChunkLimit <= 0 {
		o.SpeakerChunkLimit = 20
	}
	if o.TemporalChunkLimit <= 0 {
		o.TemporalChunkLimit = 200
	}
	if o.StrongMatch <= 0 {
		o.StrongMatch = 0.6
	}
	return o
}

// Outcome 结构化检索结果
type Outcome struct {
	Intent entity.QueryIntent `json:"intent"`
	// Candidates 文档引用的候选文档（相关度降序）
	Candidates      []*entity.Document        `json:"-"`
	Focused         *entity.Document          `json:"-"`
	Results         []*entity.RetrievalResult `json:"results"`
	UsedFullContent bool                      `json:"used_full_content"`
	Since           *time.Time                `json:"since,omitempty"`
}

// Empty 是否没有任何结果
func (o *Outcome) Empty() bool {
	return o == nil || len(o.Results) == 0
}

// Router 查询意图路由
type Router struct {
	rules    []Rule
	docs     DocumentLookup
	chunks   ChunkLookup
	detector *FullDocumentDetector
	opts     Options
	now      func() time.Time
}

// NewRouter 创建路由器，rules 为空时使用默认规则
func NewRouter(rules []Rule, docs DocumentLookup, chunks ChunkLookup, detector *FullDocumentDetector, opts Options) *Router {
	if len(rules) == 0 {
		rules = DefaultRules(nil)
	}
	if detector == nil {
		detector = NewFullDocumentDetector(nil)
	}
	return &Router{
		rules:    rules,
		docs:     docs,
		chunks:   chunks,
		detector: detector,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// Classify 按规则顺序分类查询，文档引用缺少作者与主题时从最近的用户轮次借用
func (r *Router) Classify(query string, history []entity.Turn) entity.QueryIntent {
	intent := r.match(query)
	if intent.Strategy != entity.StrategyDocumentRef || intent.Slots.Author != "" || intent.Slots.Topic != "" {
		return intent
	}

	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		if turn.Role != entity.RoleUser || strings.TrimSpace(turn.Content) == query {
			continue
		}
		prior := r.match(turn.Content)
		if prior.Strategy != entity.StrategyDocumentRef {
			continue
		}
		if prior.Slots.Author == "" && prior.Slots.Topic == "" {
			continue
		}
		intent.Slots.Author = prior.Slots.Author
		intent.Slots.Topic = prior.Slots.Topic
		intent.Rule = intent.Rule + "+history"
		break
	}
	return intent
}

func (r *Router) match(query string) entity.QueryIntent {
	for _, rule := range r.rules {
		if intent, ok := rule.TryMatch(query); ok {
			if intent.Rule == "" {
				intent.Rule = rule.Name()
			}
			return intent
		}
	}
	return entity.GeneralIntent()
}

// Route 分类并执行对应的结构化检索；general 意图不检索
func (r *Router) Route(ctx context.Context, query string, history []entity.Turn) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "routing.Route")
	defer span.End()

	intent := r.Classify(query, history)
	out := &Outcome{Intent: intent}

	var err error
	switch intent.Strategy {
	case entity.StrategyDocumentRef:
		err = r.documentReference(ctx, query, out)
	case entity.StrategySpeakerRef:
		err = r.speakerReference(ctx, out)
	case entity.StrategyTemporal:
		err = r.temporal(ctx, out)
	}
	if err != nil {
		span.RecordError(err)
		return out, err
	}

	logger.Debug(ctx, "query routed",
		"strategy", intent.Strategy,
		"rule", intent.Rule,
		"results", len(out.Results),
		"full_content", out.UsedFullContent,
	)
	return out, nil
}

func slotTerms(slots entity.IntentSlots) []string {
	var terms []string
	if slots.Author != "" {
		terms = append(terms, slots.Author)
	}
	if slots.Topic != "" {
		terms = append(terms, slots.Topic)
		for _, t := range fuzzy.ExtractTerms(slots.Topic) {
			if t != slots.Topic {
				terms = append(terms, t)
			}
		}
	}
	if len(terms) == 0 && slots.DocType != "" {
		terms = append(terms, slots.DocType)
	}
	return terms
}

func (r *Router) documentReference(ctx context.Context, query string, out *Outcome) error {
	if r.docs == nil || r.chunks == nil {
		return nil
	}
	slots := out.Intent.Slots
	terms := slotTerms(slots)
	if len(terms) == 0 {
		return nil
	}

	docs, err := r.docs.SearchByTitle(ctx, terms, r.opts.DocumentLookupLimit)
	if err != nil {
		return fmt.Errorf("document lookup: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	// 候选按标题相关度排序，同分保持最新优先
	probe := strings.TrimSpace(slots.Author + " " + slots.Topic)
	if probe == "" {
		probe = slots.DocType
	}
	scores := make(map[string]float64, len(docs))
	strong := 0
	for _, d := range docs {
		s := fuzzy.RelevanceScore(probe, d.Title, d.Summary)
		scores[d.ID] = s
		if s >= r.opts.StrongMatch {
			strong++
		}
	}
	sort.SliceStable(docs, func(i, j int) bool { return scores[docs[i].ID] > scores[docs[j].ID] })

	focused := docs[0]
	out.Candidates = docs
	out.Focused = focused

	if strong == 1 && scores[focused.ID] >= r.opts.StrongMatch && focused.Content != "" && r.detector.NeedsFullDocument(query) {
		out.UsedFullContent = true
		out.Results = []*entity.RetrievalResult{{
			Chunk: &entity.Chunk{
				ID:         "full:" + focused.ID,
				DocumentID: focused.ID,
				Tier:       entity.TierFullDocument,
				Content:    focused.Content,
				TokenCount: len([]rune(focused.Content)) / 4,
				Importance: 1.0,
				CreatedAt:  focused.CreatedAt,
			},
			DocumentTitle: focused.Title,
			SourceKind:    focused.SourceKind,
			DocumentDate:  focused.CreatedAt,
			Score:         1.0,
		}}
		return nil
	}

	chunks, err := r.chunks.ListByDocument(ctx, focused.ID, nil, 0)
	if err != nil {
		return fmt.Errorf("list document chunks: %w", err)
	}
	out.Results = toResults(chunks, map[string]*entity.Document{focused.ID: focused})
	return nil
}

func (r *Router) speakerReference(ctx context.Context, out *Outcome) error {
	speaker := out.Intent.Slots.Speaker
	if r.chunks == nil || speaker == "" {
		return nil
	}
	chunks, err := r.chunks.FindBySpeaker(ctx, speaker, r.opts.SpeakerChunkLimit)
	if err != nil {
		return fmt.Errorf("speaker lookup: %w", err)
	}
	docs, err := r.documentsFor(ctx, chunks)
	if err != nil {
		return err
	}
	out.Results = toResults(chunks, docs)
	return nil
}

func (r *Router) temporal(ctx context.Context, out *Outcome) error {
	if r.chunks == nil || out.Intent.Slots.DaysAgo == nil {
		return nil
	}
	now := r.now()
	since := StartOfDay(now).AddDate(0, 0, -*out.Intent.Slots.DaysAgo)
	out.Since = &since

	chunks, err := r.chunks.FindCreatedBetween(ctx, since, now, 0, r.opts.TemporalChunkLimit)
	if err != nil {
		return fmt.Errorf("temporal lookup: %w", err)
	}
	docs, err := r.documentsFor(ctx, chunks)
	if err != nil {
		return err
	}
	out.Results = toResults(chunks, docs)
	return nil
}

func (r *Router) documentsFor(ctx context.Context, chunks []*entity.Chunk) (map[string]*entity.Document, error) {
	if len(chunks) == 0 || r.docs == nil {
		return nil, nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	docs, err := r.docs.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	byID := make(map[string]*entity.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	return byID, nil
}

func toResults(chunks []*entity.Chunk, docs map[string]*entity.Document) []*entity.RetrievalResult {
	out := make([]*entity.RetrievalResult, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		res := &entity.RetrievalResult{Chunk: c, Score: c.Importance}
		if d, ok := docs[c.DocumentID]; ok {
			res.DocumentTitle = d.Title
			res.SourceKind = d.SourceKind
			res.DocumentDate = d.CreatedAt
		}
		out = append(out, res)
	}
	return out
}

// StartOfDay 当天零点（本地时区）
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
