// Package reasoning 跨文档推理：关联文档发现、洞察生成与文档关系推导
package reasoning

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
	"recall-api/pkg/logger"
	"recall-api/pkg/tracer"
)

const (
	defaultMaxRelated     = 5
	defaultChunkScanLimit = 50
	historyTurns          = 3
	loadConcurrency       = 4
	unknownTitle          = "Unknown"
)

// DocumentStore 推理所需的文档读取能力
type DocumentStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Document, error)
	ListSpeakers(ctx context.Context, documentIDs []string) (map[string][]string, error)
}

// ChunkStore 推理所需的片段读取能力
type ChunkStore interface {
	ListByDocument(ctx context.Context, documentID string, tiers []entity.Tier, limit int) ([]*entity.Chunk, error)
	FindRelatedDocuments(ctx context.Context, q repository.RelatedQuery) ([]repository.RelatedDocument, error)
}

// Options 推理参数
type Options struct {
	MaxRelated     int
	KnownEntities  []string
	ChunkScanLimit int
}

// Reasoner 跨文档推理器，结果仅供参考，无洞察属于正常结果
type Reasoner struct {
	docs   DocumentStore
	chunks ChunkStore
	opts   Options
}

func NewReasoner(docs DocumentStore, chunks ChunkStore, opts Options) *Reasoner {
	if opts.MaxRelated <= 0 {
		opts.MaxRelated = defaultMaxRelated
	}
	if opts.ChunkScanLimit <= 0 {
		opts.ChunkScanLimit = defaultChunkScanLimit
	}
	return &Reasoner{docs: docs, chunks: chunks, opts: opts}
}

// FindInsights 以主检索结果所属文档为起点，查找关联文档并运行四类模式检测
func (r *Reasoner) FindInsights(ctx context.Context, query string, primary []*entity.RetrievalResult, history []entity.Turn) (*entity.CrossContextInsight, error) {
	ctx, span := tracer.Start(ctx, "reasoning.Reasoner.FindInsights")
	defer span.End()

	primaryRefs := uniqueDocuments(primary)
	out := &entity.CrossContextInsight{PrimaryDocuments: primaryRefs}
	if len(primaryRefs) == 0 {
		out.Confidence = confidence(0, 0)
		return out, nil
	}

	entities := extractEntities(query, r.opts.KnownEntities)
	for _, t := range recentUserTurns(history, historyTurns) {
		entities = append(entities, extractEntities(t.Content, r.opts.KnownEntities)...)
	}
	patterns := extractQueryConcepts(query)
	excluded := make([]string, 0, len(primaryRefs))
	for _, ref := range primaryRefs {
		excluded = append(excluded, ref.ID)
		if ref.Title != "" && ref.Title != unknownTitle {
			patterns = append(patterns, ref.Title)
		}
	}

	var relatedRefs []entity.DocumentRef
	if len(entities) > 0 || len(patterns) > 0 {
		related, err := r.chunks.FindRelatedDocuments(ctx, repository.RelatedQuery{
			ExcludeIDs: excluded,
			Speakers:   entities,
			Patterns:   patterns,
			Limit:      r.opts.MaxRelated,
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("find related documents: %w", err)
		}
		for _, rd := range related {
			if rd.Document != nil {
				relatedRefs = append(relatedRefs, rd.Document.Ref())
			}
		}
		if len(relatedRefs) > r.opts.MaxRelated {
			relatedRefs = relatedRefs[:r.opts.MaxRelated]
		}
	}
	out.RelatedDocuments = relatedRefs

	profiles, err := r.loadProfiles(ctx, append(append([]entity.DocumentRef{}, primaryRefs...), relatedRefs...))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	primaryProfiles, relatedProfiles := profiles[:len(primaryRefs)], profiles[len(primaryRefs):]

	out.Insights = append(out.Insights, peopleAcrossDocuments(profiles)...)
	out.Insights = append(out.Insights, problemSolutionMatches(query, primaryProfiles, relatedProfiles)...)
	out.Insights = append(out.Insights, temporalRecurrence(profiles)...)
	out.Insights = append(out.Insights, technologySynergies(profiles)...)
	out.Relationships = relateAll(profiles)
	out.Confidence = confidence(len(out.Insights), len(relatedRefs))

	logger.Debug(ctx, "cross-context reasoning finished",
		"primary", len(primaryRefs),
		"related", len(relatedRefs),
		"insights", len(out.Insights),
	)
	return out, nil
}

// Relationships 两两推导给定文档之间的关系，不足两个文档时返回空
func (r *Reasoner) Relationships(ctx context.Context, documentIDs []string) ([]entity.DocumentRelationship, error) {
	ctx, span := tracer.Start(ctx, "reasoning.Reasoner.Relationships")
	defer span.End()

	if len(documentIDs) < 2 {
		return nil, nil
	}
	docs, err := r.docs.GetByIDs(ctx, documentIDs)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load documents: %w", err)
	}
	byID := make(map[string]*entity.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	refs := make([]entity.DocumentRef, 0, len(documentIDs))
	seen := make(map[string]struct{})
	for _, id := range documentIDs {
		d, ok := byID[id]
		if _, dup := seen[id]; !ok || dup {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, d.Ref())
	}
	if len(refs) < 2 {
		return nil, nil
	}

	profiles, err := r.loadProfiles(ctx, refs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return relateAll(profiles), nil
}

// loadProfiles 一次读取说话人，按文档并发读取片段；返回顺序与 refs 一致
func (r *Reasoner) loadProfiles(ctx context.Context, refs []entity.DocumentRef) ([]*profile, error) {
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	speakers, err := r.docs.ListSpeakers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list speakers: %w", err)
	}

	profiles := make([]*profile, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			chunks, err := r.chunks.ListByDocument(gctx, ref.ID, nil, r.opts.ChunkScanLimit)
			if err != nil {
				return fmt.Errorf("list chunks of %s: %w", ref.ID, err)
			}
			profiles[i] = newProfile(ref, speakers[ref.ID], chunks)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func relateAll(profiles []*profile) []entity.DocumentRelationship {
	var out []entity.DocumentRelationship
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			out = append(out, relate(profiles[i], profiles[j])...)
		}
	}
	return out
}

// uniqueDocuments 按结果顺序提取去重后的文档
func uniqueDocuments(results []*entity.RetrievalResult) []entity.DocumentRef {
	var refs []entity.DocumentRef
	seen := make(map[string]struct{})
	for _, res := range results {
		id := res.DocumentID()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		title := res.DocumentTitle
		if title == "" {
			title = unknownTitle
		}
		refs = append(refs, entity.DocumentRef{
			ID:         id,
			Title:      title,
			SourceKind: res.SourceKind,
			CreatedAt:  res.DocumentDate,
		})
	}
	return refs
}

func recentUserTurns(history []entity.Turn, n int) []entity.Turn {
	var out []entity.Turn
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if history[i].Role == entity.RoleUser {
			out = append(out, history[i])
		}
	}
	return out
}
