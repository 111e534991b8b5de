// Package answer 回答编排：并发召回、上下文选择、跨文档洞察、生成、质量评审与知识兜底
package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"recall-api/internal/application/fuzzy"
	"recall-api/internal/application/memory"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/application/routing"
	"recall-api/internal/domain/entity"
	wfchain "recall-api/internal/workflow/chain"
	wfmodel "recall-api/internal/workflow/model"
	apperrors "recall-api/pkg/errors"
	"recall-api/pkg/logger"
	"recall-api/pkg/metrics"
	"recall-api/pkg/tracer"
)

const (
	pathGrounded  = "grounded"
	pathKnowledge = "knowledge_fallback"

	disclosure        = "\n\n_Hinweis: Diese Antwort basiert auf allgemeinem KI-Wissen, da die Wissensdatenbank keinen ausreichenden Kontext geliefert hat._"
	unavailableAnswer = "Entschuldigung, ich konnte gerade keine Antwort erzeugen. Bitte versuche es später noch einmal."
)

// ErrStreamAborted 流式输出时接收方已断开
var ErrStreamAborted = errors.New("answer stream aborted")

// Options 编排参数
type Options struct {
	QualityThreshold   float64
	NeutralQuality     float64
	ContextChunks      int
	LargeContextTokens int
	BranchTimeout      time.Duration
	GenerateTimeout    time.Duration
	JudgeTimeout       time.Duration

	Tiers      ModelTiers
	JudgeModel string

	FuzzyDocuments  int
	FuzzyChunkLimit int
	HybridTopK      int
	RerankTopK      int
	StreamWords     int
}

func (o Options) withDefaults() Options {
	if o.QualityThreshold <= 0 {
		o.QualityThreshold = 0.7
	}
	if o.NeutralQuality <= 0 {
		o.NeutralQuality = 0.8
	}
	if o.ContextChunks <= 0 {
		o.ContextChunks = 10
	}
	if o.LargeContextTokens <= 0 {
		o.LargeContextTokens = 50000
	}
	if o.BranchTimeout <= 0 {
		o.BranchTimeout = 8 * time.Second
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = 90 * time.Second
	}
	if o.JudgeTimeout <= 0 {
		o.JudgeTimeout = 20 * time.Second
	}
	if o.FuzzyDocuments <= 0 {
		o.FuzzyDocuments = 3
	}
	if o.FuzzyChunkLimit <= 0 {
		o.FuzzyChunkLimit = 20
	}
	if o.HybridTopK <= 0 {
		o.HybridTopK = 10
	}
	if o.RerankTopK <= 0 {
		o.RerankTopK = 5
	}
	if o.StreamWords <= 0 {
		o.StreamWords = 5
	}
	if o.JudgeModel == "" {
		o.JudgeModel = o.Tiers.Default
	}
	return o
}

// Deps 编排依赖；Fuzzy/Router/Search/Insights 为 nil 时跳过对应分支
type Deps struct {
	Fuzzy     FuzzySearcher
	Chunks    ChunkLister
	Router    QueryRouter
	Search    HybridSearcher
	Insights  InsightFinder
	Memory    *memory.Memory
	Generator Generator
	Judge     Judge
}

// Orchestrator 回答编排器
type Orchestrator struct {
	deps Deps
	opts Options
}

func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if deps.Memory == nil {
		deps.Memory = memory.New(nil, memory.Options{})
	}
	return &Orchestrator{deps: deps, opts: opts.withDefaults()}
}

// Tiers 返回模型档位
func (o *Orchestrator) Tiers() ModelTiers {
	return o.opts.Tiers
}

// run 单次提问的管线状态
type run struct {
	req          Request
	query        string
	session      *memory.Session
	intent       entity.QueryIntent
	results      []*entity.RetrievalResult
	prompt       []*entity.RetrievalResult
	model        string
	conversation string
	tokens       int
	start        time.Time

	mu  sync.Mutex
	dbg *DebugInfo
}

func (r *run) degrade(step string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dbg.DegradedSteps == nil {
		r.dbg.DegradedSteps = make(map[string]string)
	}
	r.dbg.DegradedSteps[step] = err.Error()
}

// Ask 回答问题，返回完整结果
func (o *Orchestrator) Ask(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "answer.Orchestrator.Ask")
	defer span.End()

	resp, err := o.execute(ctx, req, nil)
	if err != nil {
		span.RecordError(err)
	}
	return resp, err
}

// Stream 流式回答：emit 依次收到文本片段，最后收到 Done 事件；返回的结果不再重复文本事件
func (o *Orchestrator) Stream(ctx context.Context, req Request, emit func(Event) error) (*Response, error) {
	ctx, span := tracer.Start(ctx, "answer.Orchestrator.Stream")
	defer span.End()

	if emit == nil {
		return nil, fmt.Errorf("emit callback is nil")
	}
	resp, err := o.execute(ctx, req, emit)
	if err != nil {
		span.RecordError(err)
	}
	return resp, err
}

func (o *Orchestrator) execute(ctx context.Context, req Request, emit func(Event) error) (*Response, error) {
	r, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := r.session.Close(ctx, true); err != nil {
			o.degrade(ctx, r, "session_save", err)
		}
	}()

	answer, modelUsed, path, err := o.respond(ctx, r, emit)
	if err != nil {
		return nil, err
	}

	if r.session.ShouldRemind(answer) {
		reminder := r.session.Reminder()
		answer += reminder
		r.dbg.Reminded = true
		if err := send(emit, Event{Text: reminder}); err != nil {
			return nil, err
		}
	}
	if err := send(emit, Event{Done: true, ModelUsed: modelUsed}); err != nil {
		return nil, err
	}

	elapsed := time.Since(r.start)
	metrics.AnswerTotal.WithLabelValues(string(r.intent.Strategy), path).Inc()
	metrics.AnswerDuration.WithLabelValues(strconv.FormatBool(emit != nil)).Observe(elapsed.Seconds())

	r.dbg.SearchAttempts = r.session.Intent.AttemptCount()
	r.dbg.OriginalQuestion = r.session.Intent.OriginalQuestion
	r.dbg.ElapsedMillis = elapsed.Milliseconds()

	logger.Info(ctx, "question answered",
		"strategy", r.intent.Strategy,
		"context_path", r.dbg.ContextPath,
		"path", path,
		"quality", r.dbg.QualityScore,
		"model", modelUsed,
		"chunks", len(r.results),
		"elapsed_ms", r.dbg.ElapsedMillis,
	)

	resp := &Response{
		Answer:     answer,
		Sources:    BuildSources(r.results),
		ModelUsed:  modelUsed,
		TokensUsed: r.tokens,
	}
	if req.Debug {
		resp.Debug = r.dbg
	}
	return resp, nil
}

// prepare 校验输入、打开会话、并发召回并选定上下文与模型
func (o *Orchestrator) prepare(ctx context.Context, req Request) (*run, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.MalformedInput("query is empty", retrieval.ErrEmptyQuery)
	}

	turns := append(append([]entity.Turn(nil), req.History...), entity.Turn{Role: entity.RoleUser, Content: query})
	session, err := o.deps.Memory.Open(ctx, req.SessionID, turns)
	if err != nil {
		return nil, err
	}

	r := &run{
		req:          req,
		query:        query,
		session:      session,
		intent:       entity.GeneralIntent(),
		conversation: FormatConversation(req.History),
		start:        time.Now(),
		dbg:          &DebugInfo{},
	}

	o.gather(ctx, r)
	session.RecordAttempt(query, r.intent.Strategy, len(r.results))
	o.enrich(ctx, r)

	contextText := retrieval.BuildPromptContext(r.prompt, o.opts.ContextChunks, 0)
	r.model = SelectModel(o.opts.Tiers, query, EstimateTokens(contextText), o.opts.LargeContextTokens, req.PreferredModel)

	r.dbg.Strategy = r.intent.Strategy
	r.dbg.Rule = r.intent.Rule
	r.dbg.Slots = r.intent.Slots
	r.dbg.ChunkCount = len(r.results)
	return r, nil
}

// gather 并发执行模糊匹配、意图路由与两路混合检索；单个分支失败只记为降级
func (o *Orchestrator) gather(ctx context.Context, r *run) {
	ctx, span := tracer.Start(ctx, "answer.Orchestrator.gather")
	defer span.End()

	var (
		fuzzyDocs []fuzzy.ScoredDocument
		fuzzyRes  []*entity.RetrievalResult
		outcome   *routing.Outcome
		hybrid    []*entity.RetrievalResult
		reranked  []*entity.RetrievalResult
	)

	var g errgroup.Group
	branch := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(ctx, o.opts.BranchTimeout)
			defer cancel()
			if err := fn(bctx); err != nil {
				o.degrade(ctx, r, name, err)
			}
			return nil
		})
	}

	if o.deps.Fuzzy != nil {
		branch("fuzzy", func(ctx context.Context) error {
			var err error
			fuzzyDocs, fuzzyRes, err = o.fuzzyContext(ctx, r.query)
			return err
		})
	}
	if o.deps.Router != nil {
		branch("routing", func(ctx context.Context) error {
			var err error
			outcome, err = o.deps.Router.Route(ctx, r.query, r.req.History)
			return err
		})
	}
	if o.deps.Search != nil {
		branch("hybrid", func(ctx context.Context) error {
			out, err := o.deps.Search.Search(ctx, retrieval.SearchInput{Query: r.query, TopK: o.opts.HybridTopK})
			if err != nil {
				return err
			}
			hybrid = out.Results
			return nil
		})
		branch("hybrid_rerank", func(ctx context.Context) error {
			out, err := o.deps.Search.Search(ctx, retrieval.SearchInput{Query: r.query, TopK: o.opts.RerankTopK, Rerank: true})
			if err != nil {
				return err
			}
			reranked = out.Results
			return nil
		})
	}
	_ = g.Wait()

	if outcome != nil {
		r.intent = outcome.Intent
		r.dbg.UsedFullContent = outcome.UsedFullContent
	}
	r.dbg.FuzzyMatches = len(fuzzyDocs)
	for _, d := range fuzzyDocs {
		r.dbg.MatchedDocuments = append(r.dbg.MatchedDocuments, d.Document.Title)
	}

	switch {
	case outcome != nil && outcome.Intent.Strategy == entity.StrategyDocumentRef && !outcome.Empty():
		r.results = outcome.Results
		r.dbg.ContextPath = PathDocumentRef
	case len(fuzzyRes) > 0:
		r.results = fuzzyRes
		r.dbg.ContextPath = PathFuzzy
	default:
		var routed []*entity.RetrievalResult
		if outcome != nil && outcome.Intent.Strategy != entity.StrategyDocumentRef {
			routed = outcome.Results
		}
		r.results = Dedupe(routed, hybrid, reranked)
		r.dbg.ContextPath = PathHybrid
	}
	if len(r.results) == 0 {
		r.dbg.ContextPath = PathNone
	}
	r.prompt = r.results
}

// fuzzyContext 模糊匹配得分最高的文档及其片段
func (o *Orchestrator) fuzzyContext(ctx context.Context, query string) ([]fuzzy.ScoredDocument, []*entity.RetrievalResult, error) {
	docs, err := o.deps.Fuzzy.FuzzySearchDocuments(ctx, query, 0)
	if err != nil {
		return nil, nil, err
	}
	if len(docs) > o.opts.FuzzyDocuments {
		docs = docs[:o.opts.FuzzyDocuments]
	}
	if len(docs) == 0 || o.deps.Chunks == nil {
		return docs, nil, nil
	}

	var out []*entity.RetrievalResult
	for _, sd := range docs {
		chunks, err := o.deps.Chunks.ListByDocument(ctx, sd.Document.ID, nil, o.opts.FuzzyChunkLimit)
		if err != nil {
			return docs, out, fmt.Errorf("list chunks of %s: %w", sd.Document.ID, err)
		}
		for _, c := range chunks {
			out = append(out, &entity.RetrievalResult{
				Chunk:         c,
				DocumentTitle: sd.Document.Title,
				SourceKind:    sd.Document.SourceKind,
				DocumentDate:  sd.Document.CreatedAt,
				Score:         sd.Score,
			})
		}
	}
	return docs, out, nil
}

// enrich 有召回结果时追加跨文档洞察，洞察只进入 Prompt 不进入来源
func (o *Orchestrator) enrich(ctx context.Context, r *run) {
	if o.deps.Insights == nil || len(r.results) == 0 {
		return
	}
	ictx, cancel := context.WithTimeout(ctx, o.opts.BranchTimeout)
	defer cancel()

	insight, err := o.deps.Insights.FindInsights(ictx, r.query, r.results, r.req.History)
	if err != nil {
		o.degrade(ctx, r, "cross_context", err)
		return
	}
	if insight.Empty() {
		return
	}
	r.dbg.Insights = insight.Insights
	r.dbg.RelatedDocuments = insight.RelatedDocuments
	r.prompt = append([]*entity.RetrievalResult{insightResult(insight)}, r.results...)
}

// respond 生成、评审、按需知识兜底；返回回答、实际模型与路径
func (o *Orchestrator) respond(ctx context.Context, r *run, emit func(Event) error) (string, string, string, error) {
	var grounded, groundedModel string
	quality := 0.0

	if len(r.results) > 0 {
		msg, used, err := o.invoke(ctx, r, &wfmodel.AnswerInput{
			Mode:         wfmodel.AnswerGrounded,
			Model:        r.model,
			Query:        r.query,
			Context:      retrieval.BuildPromptContext(r.prompt, o.opts.ContextChunks, 0),
			Conversation: r.conversation,
		})
		if err != nil {
			o.degrade(ctx, r, "generate", err)
		} else {
			grounded, groundedModel = strings.TrimSpace(msg.Content), used
		}
		if grounded != "" {
			quality = o.judge(ctx, r, grounded)
			metrics.AnswerQualityScore.Observe(quality)
		}
	}
	r.dbg.QualityScore = quality

	if grounded != "" && quality >= o.opts.QualityThreshold {
		return grounded, groundedModel, pathGrounded, emitPieces(emit, grounded, o.opts.StreamWords)
	}

	r.dbg.UsedFallback = true
	note := previousAttemptLabel + grounded
	switch {
	case len(r.results) == 0:
		note = emptyContextNote
	case grounded == "":
		note = ""
	}
	in := &wfmodel.AnswerInput{
		Mode:         wfmodel.AnswerKnowledge,
		Model:        FallbackModel(o.opts.Tiers, r.query, r.req.PreferredModel),
		Query:        r.query,
		Conversation: r.conversation,
		Note:         note,
	}

	var (
		text, used string
		err        error
	)
	if emit == nil {
		var msg *schema.Message
		if msg, used, err = o.invoke(ctx, r, in); err == nil {
			text = strings.TrimSpace(msg.Content)
		}
	} else {
		text, used, err = o.stream(ctx, r, in, emit)
		if errors.Is(err, ErrStreamAborted) {
			return "", "", "", err
		}
	}

	switch {
	case err == nil || text != "":
		if err != nil {
			o.degrade(ctx, r, "knowledge_fallback", err)
		}
		if err := send(emit, Event{Text: disclosure}); err != nil {
			return "", "", "", err
		}
		return text + disclosure, used, pathKnowledge, nil
	case grounded != "":
		o.degrade(ctx, r, "knowledge_fallback", err)
		r.dbg.UsedFallback = false
		return grounded, groundedModel, pathGrounded, emitPieces(emit, grounded, o.opts.StreamWords)
	default:
		o.degrade(ctx, r, "knowledge_fallback", err)
		return unavailableAnswer, "", pathKnowledge, send(emit, Event{Text: unavailableAnswer})
	}
}

// invoke 非流式生成；模型未提供时退回默认档位重试一次
func (o *Orchestrator) invoke(ctx context.Context, r *run, in *wfmodel.AnswerInput) (*schema.Message, string, error) {
	gctx, cancel := context.WithTimeout(ctx, o.opts.GenerateTimeout)
	defer cancel()

	msg, err := o.deps.Generator.Invoke(gctx, in)
	if o.retryOnDefault(ctx, r, in, err) {
		msg, err = o.deps.Generator.Invoke(gctx, in)
	}
	if err != nil {
		return nil, in.Model, err
	}
	if msg == nil {
		return nil, in.Model, fmt.Errorf("empty llm response")
	}
	r.tokens += wfchain.UsageOf(msg, in.Model).TotalTokens()
	return msg, in.Model, nil
}

// stream 流式生成并逐段转发，返回已输出的完整文本
func (o *Orchestrator) stream(ctx context.Context, r *run, in *wfmodel.AnswerInput, emit func(Event) error) (string, string, error) {
	sctx, cancel := context.WithTimeout(ctx, o.opts.GenerateTimeout)
	defer cancel()

	sr, err := o.deps.Generator.Stream(sctx, in)
	if o.retryOnDefault(ctx, r, in, err) {
		sr, err = o.deps.Generator.Stream(sctx, in)
	}
	if err != nil {
		return "", in.Model, err
	}
	defer sr.Close()

	var b strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return b.String(), in.Model, err
		}
		if msg == nil {
			continue
		}
		r.tokens += wfchain.UsageOf(msg, in.Model).TotalTokens()
		if msg.Content == "" {
			continue
		}
		b.WriteString(msg.Content)
		if err := send(emit, Event{Text: msg.Content}); err != nil {
			return b.String(), in.Model, err
		}
	}
	return b.String(), in.Model, nil
}

// retryOnDefault 请求的模型未提供时改用默认档位，返回是否需要重试
func (o *Orchestrator) retryOnDefault(ctx context.Context, r *run, in *wfmodel.AnswerInput, err error) bool {
	if !errors.Is(err, apperrors.ErrModelUnsupported) || o.opts.Tiers.Default == "" || in.Model == o.opts.Tiers.Default {
		return false
	}
	logger.Warn(ctx, "requested model not served, falling back to default tier",
		"model", in.Model,
		"default", o.opts.Tiers.Default,
	)
	metrics.DegradedBranchTotal.WithLabelValues("answer_model", "model_unsupported").Inc()
	r.degrade("model_"+in.Model, err)
	in.Model = o.opts.Tiers.Default
	return true
}

// judge 评审失败时使用中性分
func (o *Orchestrator) judge(ctx context.Context, r *run, answer string) float64 {
	if o.deps.Judge == nil {
		return o.opts.NeutralQuality
	}
	jctx, cancel := context.WithTimeout(ctx, o.opts.JudgeTimeout)
	defer cancel()

	score, err := o.deps.Judge.Score(jctx, &wfmodel.JudgeInput{
		Model:        o.opts.JudgeModel,
		Query:        r.query,
		Context:      judgeContext(r.results),
		Answer:       answer,
		Conversation: r.conversation,
	})
	if err != nil {
		o.degrade(ctx, r, "quality_judge", apperrors.ErrQualityJudgmentUnavailable.WithError(err))
		return o.opts.NeutralQuality
	}
	return min(max(score, 0), 1)
}

func (o *Orchestrator) degrade(ctx context.Context, r *run, step string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(err, apperrors.ErrModelUnsupported):
		reason = "model_unsupported"
	}
	r.degrade(step, err)
	metrics.DegradedBranchTotal.WithLabelValues("answer_"+step, reason).Inc()
	logger.Warn(ctx, "answer step degraded", "step", step, "reason", reason, "error", err)
}

func send(emit func(Event) error, ev Event) error {
	if emit == nil {
		return nil
	}
	if err := emit(ev); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamAborted, err)
	}
	return nil
}

func emitPieces(emit func(Event) error, text string, words int) error {
	if emit == nil {
		return nil
	}
	for _, p := range chunkPieces(text, words) {
		if err := send(emit, Event{Text: p}); err != nil {
			return err
		}
	}
	return nil
}
