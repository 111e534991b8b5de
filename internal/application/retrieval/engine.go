package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
	apperrors "recall-api/pkg/errors"
	"recall-api/pkg/logger"
	"recall-api/pkg/metrics"
	"recall-api/pkg/tracer"
)

// ChunkStore 检索所需的片段读取能力
type ChunkStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Chunk, error)
	GetNeighbors(ctx context.Context, documentID string, ordinal int) (prev, next *entity.Chunk, err error)
	LexicalSearch(ctx context.Context, query string, limit int, filter *repository.ChunkFilter) ([]repository.LexicalHit, error)
	FindBySpeaker(ctx context.Context, name string, limit int) ([]*entity.Chunk, error)
	FindCreatedBetween(ctx context.Context, start, end time.Time, perDocument, limit int) ([]*entity.Chunk, error)
	GetTokenEmbeddings(ctx context.Context, chunkIDs []string) (map[string]*entity.TokenEmbeddings, error)
}

// DocumentStore 检索所需的文档读取能力
type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Document, error)
}

// Options 检索参数
type Options struct {
	Weights             Weights
	CandidateMultiplier int
	RerankMinCandidates int
	DefaultTopK         int
	MaxTopK             int
	// BranchTimeout 单个候选分支（词法/向量）的超时
	BranchTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Weights == (Weights{}) {
		o.Weights = DefaultWeights()
	}
	if o.CandidateMultiplier <= 0 {
		o.CandidateMultiplier = 2
	}
	if o.RerankMinCandidates <= 0 {
		o.RerankMinCandidates = 5
	}
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = 10
	}
	if o.MaxTopK <= 0 {
		o.MaxTopK = 100
	}
	return o
}

// Engine 多阶段混合检索：词法 + 稠密召回、融合、MaxSim 重排、上下文补全
type Engine struct {
	embedder Embedder
	vector   VectorStore
	chunks   ChunkStore
	docs     DocumentStore
	opts     Options
}

func NewEngine(embedder Embedder, vector VectorStore, chunks ChunkStore, docs DocumentStore, opts Options) *Engine {
	return &Engine{
		embedder: embedder,
		vector:   vector,
		chunks:   chunks,
		docs:     docs,
		opts:     opts.withDefaults(),
	}
}

func (e *Engine) VectorEnabled() bool {
	return e != nil && e.embedder != nil && e.vector != nil
}

func (e *Engine) Weights() Weights {
	return e.opts.Weights
}

func (e *Engine) Search(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Engine.Search")
	defer span.End()

	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return nil, ErrEmptyQuery
	}
	if f := in.Filter; f != nil && f.CreatedAfter != nil && f.CreatedBefore != nil && f.CreatedAfter.After(*f.CreatedBefore) {
		return nil, ErrInvalidDateRange
	}
	if in.TopK <= 0 {
		in.TopK = e.opts.DefaultTopK
	}
	if in.TopK > e.opts.MaxTopK {
		in.TopK = e.opts.MaxTopK
	}

	dbg := &DebugInfo{}
	out := &SearchOutput{Debug: dbg}

	// 1) 查询向量（可降级）
	var queryVec []float32
	if e.VectorEnabled() {
		start := time.Now()
		v, err := e.embedder.Embed(ctx, in.Query)
		if err != nil {
			e.degrade(ctx, dbg, "embed", err)
		} else {
			queryVec = v
		}
		e.observe(dbg, "embed", start)
	} else {
		dbg.degrade("dense", ErrVectorDisabled)
	}

	// 2) 一阶段：词法与向量并行召回，单个分支失败视为空结果
	limit := in.TopK * e.opts.CandidateMultiplier
	var (
		lexHits   []repository.LexicalHit
		denseHits []*VectorHit
		lexErr    error
		denseErr  error
		lexStart  = time.Now()
		lexDone   time.Time
		denseDone time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bctx, cancel := e.branchContext(gctx)
		defer cancel()
		lexHits, lexErr = e.chunks.LexicalSearch(bctx, in.Query, limit, in.Filter)
		lexDone = time.Now()
		return nil
	})
	if queryVec != nil {
		g.Go(func() error {
			bctx, cancel := e.branchContext(gctx)
			defer cancel()
			denseHits, denseErr = e.vector.SearchChunks(bctx, &VectorSearchParams{
				QueryVector: queryVec,
				TopK:        limit,
				Filter:      in.Filter,
			})
			denseDone = time.Now()
			return nil
		})
	}
	_ = g.Wait()
	e.observeSpan(dbg, "lexical", lexStart, lexDone)
	if queryVec != nil {
		e.observeSpan(dbg, "dense", lexStart, denseDone)
	}
	if lexErr != nil {
		e.degrade(ctx, dbg, "lexical", lexErr)
		lexHits = nil
	}
	if denseErr != nil {
		e.degrade(ctx, dbg, "dense", denseErr)
		denseHits = nil
	}
	dbg.LexicalHits = len(lexHits)
	dbg.DenseHits = len(denseHits)

	cands, err := e.fuse(ctx, denseHits, lexHits)
	if err != nil {
		return nil, err
	}
	dbg.Candidates = len(cands)
	tracer.Annotate(ctx, tracer.AttrTopK.Int(in.TopK), tracer.AttrCandidates.Int(len(cands)))
	metrics.RetrievalCandidates.WithLabelValues(filterScope(in.Filter)).Observe(float64(len(cands)))
	if len(cands) == 0 {
		return out, nil
	}

	// 3) 二阶段：MaxSim 重排（可选）
	if in.Rerank && len(cands) > e.opts.RerankMinCandidates {
		start := time.Now()
		if err := e.rerank(ctx, in.Query, cands); err != nil {
			e.degrade(ctx, dbg, "rerank", err)
			metrics.RerankTotal.WithLabelValues("degraded").Inc()
		} else {
			dbg.Reranked = true
			metrics.RerankTotal.WithLabelValues("applied").Inc()
		}
		e.observe(dbg, "rerank", start)
	} else {
		metrics.RerankTotal.WithLabelValues("skipped").Inc()
	}

	rank(cands)
	if len(cands) > in.TopK {
		cands = cands[:in.TopK]
	}

	results := make([]*entity.RetrievalResult, 0, len(cands))
	for _, c := range cands {
		results = append(results, c.result)
	}

	// 4) 三阶段：文档信息与相邻片段
	start := time.Now()
	if err := e.enrich(ctx, results); err != nil {
		e.degrade(ctx, dbg, "enrich", err)
	}
	e.observe(dbg, "enrich", start)

	out.Results = results
	tracer.Annotate(ctx, tracer.AttrResults.Int(len(results)), tracer.AttrReranked.Bool(dbg.Reranked))
	return out, nil
}

// fuse 按片段 ID 合并两路候选并计算融合分；向量命中在前，仅词法命中的追加在后
func (e *Engine) fuse(ctx context.Context, dense []*VectorHit, lexical []repository.LexicalHit) ([]*candidate, error) {
	denseScore := make(map[string]float64, len(dense))
	lexRank := make(map[string]float64, len(lexical))
	order := make([]string, 0, len(dense)+len(lexical))
	seen := make(map[string]struct{}, len(dense)+len(lexical))

	for _, h := range dense {
		if h == nil || h.ChunkID == "" {
			continue
		}
		denseScore[h.ChunkID] = SimilarityScore(h.Score)
		if _, ok := seen[h.ChunkID]; !ok {
			seen[h.ChunkID] = struct{}{}
			order = append(order, h.ChunkID)
		}
	}
	for _, h := range lexical {
		if h.ChunkID == "" {
			continue
		}
		lexRank[h.ChunkID] = h.Rank
		if _, ok := seen[h.ChunkID]; !ok {
			seen[h.ChunkID] = struct{}{}
			order = append(order, h.ChunkID)
		}
	}
	if len(order) == 0 {
		return nil, nil
	}

	chunks, err := e.chunks.GetByIDs(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("load candidate chunks: %w", err)
	}
	byID := make(map[string]*entity.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	w := e.opts.Weights
	cands := make([]*candidate, 0, len(order))
	for _, id := range order {
		chunk, ok := byID[id]
		if !ok {
			continue
		}
		fusion := w.Fuse(denseScore[id], lexRank[id])
		cands = append(cands, &candidate{
			order: len(cands),
			result: &entity.RetrievalResult{
				Chunk: chunk,
				Score: fusion,
				Scores: entity.ScoreBreakdown{
					Dense:   denseScore[id],
					Lexical: lexRank[id],
					Fusion:  fusion,
				},
			},
		})
	}
	return cands, nil
}

func (e *Engine) rerank(ctx context.Context, query string, cands []*candidate) error {
	if e.embedder == nil {
		return ErrTokenEmbeddingsUnavailable
	}
	q, err := e.embedder.EmbedTokens(ctx, query)
	if err != nil {
		return err
	}
	if q == nil || len(q.Vectors) == 0 {
		return ErrTokenEmbeddingsUnavailable
	}

	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.result.Chunk.ID)
	}
	tokens, err := e.chunks.GetTokenEmbeddings(ctx, ids)
	if err != nil {
		return fmt.Errorf("load token embeddings: %w", err)
	}
	applyMaxSim(e.opts.Weights, q.Vectors, cands, tokens)
	return nil
}

// applyMaxSim 有词元向量的候选按 Blend 重新打分，其余保留融合分
func applyMaxSim(w Weights, query [][]float32, cands []*candidate, tokens map[string]*entity.TokenEmbeddings) {
	for _, c := range cands {
		te := tokens[c.result.Chunk.ID]
		if te == nil || len(te.Vectors) == 0 {
			continue
		}
		ms := MaxSim(query, te.Vectors)
		c.result.Scores.MaxSim = ms
		c.result.Scores.Reranked = true
		c.result.Score = w.Blend(c.result.Scores.Fusion, ms)
	}
}

func (e *Engine) enrich(ctx context.Context, results []*entity.RetrievalResult) error {
	if err := e.attachDocuments(ctx, results); err != nil {
		return err
	}
	for _, r := range results {
		if r.Chunk.Tier != entity.TierDetail {
			continue
		}
		prev, next, err := e.chunks.GetNeighbors(ctx, r.Chunk.DocumentID, r.Chunk.Ordinal)
		if err != nil {
			return fmt.Errorf("load neighbors: %w", err)
		}
		r.Prev, r.Next = prev, next
	}
	return nil
}

func (e *Engine) attachDocuments(ctx context.Context, results []*entity.RetrievalResult) error {
	if e.docs == nil || len(results) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(results))
	for _, r := range results {
		id := r.DocumentID()
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	docs, err := e.docs.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	byID := make(map[string]*entity.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	for _, r := range results {
		if d, ok := byID[r.DocumentID()]; ok {
			r.DocumentTitle = d.Title
			r.SourceKind = d.SourceKind
			r.DocumentDate = d.CreatedAt
		}
	}
	return nil
}

// SearchBySpeaker 说话人范围检索；query 为空时按最新文档返回该说话人的片段
func (e *Engine) SearchBySpeaker(ctx context.Context, speaker, query string, topK int, rerank bool) (*SearchOutput, error) {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		return nil, apperrors.MalformedInput("speaker is required", nil)
	}
	if strings.TrimSpace(query) != "" {
		return e.Search(ctx, SearchInput{
			Query:  query,
			TopK:   topK,
			Rerank: rerank,
			Filter: &repository.ChunkFilter{Speaker: speaker},
		})
	}
	if topK <= 0 {
		topK = e.opts.DefaultTopK
	}
	chunks, err := e.chunks.FindBySpeaker(ctx, speaker, topK)
	if err != nil {
		return nil, fmt.Errorf("find by speaker: %w", err)
	}
	return e.browse(ctx, chunks)
}

// SearchByDateRange 时间范围检索；query 为空时返回窗口内每个文档的前几个细节片段
func (e *Engine) SearchByDateRange(ctx context.Context, start, end time.Time, query string, topK int, rerank bool) (*SearchOutput, error) {
	if start.After(end) {
		return nil, ErrInvalidDateRange
	}
	if strings.TrimSpace(query) != "" {
		return e.Search(ctx, SearchInput{
			Query:  query,
			TopK:   topK,
			Rerank: rerank,
			Filter: &repository.ChunkFilter{CreatedAfter: &start, CreatedBefore: &end},
		})
	}
	if topK <= 0 {
		topK = e.opts.DefaultTopK
	}
	chunks, err := e.chunks.FindCreatedBetween(ctx, start, end, 5, topK)
	if err != nil {
		return nil, fmt.Errorf("find by date range: %w", err)
	}
	return e.browse(ctx, chunks)
}

func (e *Engine) browse(ctx context.Context, chunks []*entity.Chunk) (*SearchOutput, error) {
	results := make([]*entity.RetrievalResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, &entity.RetrievalResult{Chunk: c, Score: c.Importance})
	}
	out := &SearchOutput{Results: results, Debug: &DebugInfo{Candidates: len(results)}}
	if err := e.enrich(ctx, results); err != nil {
		e.degrade(ctx, out.Debug, "enrich", err)
	}
	return out, nil
}

// SimilarDocuments 摘要向量最近邻文档，不含自身
func (e *Engine) SimilarDocuments(ctx context.Context, documentID string, topK int) ([]SimilarDocument, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Engine.SimilarDocuments")
	defer span.End()

	if topK <= 0 {
		topK = 5
	}
	if topK > 20 {
		topK = 20
	}
	doc, err := e.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil, apperrors.ErrDocumentNotFound
	}
	if len(doc.SummaryEmbedding) == 0 {
		return nil, nil
	}
	if e.vector == nil {
		return nil, ErrVectorDisabled
	}

	hits, err := e.vector.SearchSummaries(ctx, doc.SummaryEmbedding, topK, documentID)
	if err != nil {
		return nil, fmt.Errorf("search summaries: %w", err)
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.DocumentID != documentID {
			ids = append(ids, h.DocumentID)
		}
	}
	docs, err := e.docs.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	byID := make(map[string]*entity.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	out := make([]SimilarDocument, 0, len(hits))
	for _, h := range hits {
		d, ok := byID[h.DocumentID]
		if !ok {
			continue
		}
		out = append(out, SimilarDocument{Document: d.Ref(), Similarity: SimilarityScore(h.Score)})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (e *Engine) branchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.BranchTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.BranchTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) degrade(ctx context.Context, dbg *DebugInfo, step string, err error) {
	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	dbg.degrade(step, err)
	tracer.Degrade(ctx, step, reason, err)
	metrics.DegradedBranchTotal.WithLabelValues("retrieval_"+step, reason).Inc()
	logger.Warn(ctx, "retrieval step degraded", "step", step, "reason", reason, "error", err)
}

func (e *Engine) observe(dbg *DebugInfo, stage string, start time.Time) {
	e.observeSpan(dbg, stage, start, time.Now())
}

func (e *Engine) observeSpan(dbg *DebugInfo, stage string, start, end time.Time) {
	d := end.Sub(start)
	metrics.RetrievalStageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if dbg.StageMillis == nil {
		dbg.StageMillis = make(map[string]int64)
	}
	dbg.StageMillis[stage] = d.Milliseconds()
}

func filterScope(f *repository.ChunkFilter) string {
	switch {
	case f.IsZero():
		return "all"
	case f.Speaker != "":
		return "speaker"
	case f.CreatedAfter != nil || f.CreatedBefore != nil:
		return "date_range"
	default:
		return "filtered"
	}
}
