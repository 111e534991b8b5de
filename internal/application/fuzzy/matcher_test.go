package fuzzy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall-api/internal/domain/entity"
)

type fakeDocs struct {
	docs      []*entity.Document
	gotTerms  []string
	gotLimit  int
	searchErr error
}

func (f *fakeDocs) SearchByTerms(_ context.Context, terms []string, limit int) ([]*entity.Document, error) {
	f.gotTerms = terms
	f.gotLimit = limit
	return f.docs, f.searchErr
}

func (f *fakeDocs) ListTitles(_ context.Context, _ int) ([]string, error) {
	out := make([]string, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d.Title)
	}
	return out, nil
}

type fakeSpeakers []string

func (f fakeSpeakers) ListDistinctSpeakers(_ context.Context, _ int) ([]string, error) {
	return f, nil
}

func doc(title, summary string) *entity.Document {
	return &entity.Document{Title: title, Summary: summary}
}

func TestRelevanceScore(t *testing.T) {
	exact := RelevanceScore("claude code hooks", "Claude Code Hooks", "")
	assert.InDelta(t, 0.9, exact, 1e-9)

	capped := RelevanceScore("claude code hooks", "Claude Code Hooks", "claude code hooks")
	assert.Equal(t, 1.0, capped)

	partial := RelevanceScore("hooks", "Claude Code Hooks Tutorial", "")
	assert.InDelta(t, 0.6*0.8+0.1, partial, 1e-9)

	unrelated := RelevanceScore("pflegekräfte polen", "Kubernetes Upgrade", "Cluster notes")
	assert.Less(t, unrelated, 0.6)
}

func TestMatcher_FuzzySearchDocuments(t *testing.T) {
	src := &fakeDocs{docs: []*entity.Document{
		doc("Kubernetes Upgrade", "Cluster notes"),
		doc("Claude Code Hooks", "Wie man Hooks in Claude Code einrichtet"),
		doc("Claude Code", ""),
	}}
	m := NewMatcher(src, nil, nil, Options{})

	got, err := m.FuzzySearchDocuments(context.Background(), "claude code hooks", 0.6)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Claude Code Hooks", got[0].Document.Title)
	assert.Equal(t, "Claude Code", got[1].Document.Title)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)

	assert.Equal(t, 10, src.gotLimit)
	assert.Contains(t, src.gotTerms, "webhook")
	assert.Contains(t, src.gotTerms, "callback")
}

func TestMatcher_FuzzySearchDocuments_NoTerms(t *testing.T) {
	src := &fakeDocs{searchErr: errors.New("should not be called")}
	m := NewMatcher(src, nil, nil, Options{})

	got, err := m.FuzzySearchDocuments(context.Background(), "das war es", 0.6)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatcher_FuzzySearchDocuments_SourceError(t *testing.T) {
	src := &fakeDocs{searchErr: errors.New("db down")}
	m := NewMatcher(src, nil, nil, Options{})

	_, err := m.FuzzySearchDocuments(context.Background(), "roboter video", 0.6)
	assert.ErrorContains(t, err, "db down")
}

func TestMatcher_FindSimilarEntities(t *testing.T) {
	src := &fakeDocs{docs: []*entity.Document{doc("Gespräch mit Nina", "")}}
	m := NewMatcher(src, fakeSpeakers{"Nina", "Nino", "Max"}, nil, Options{})

	got, err := m.FindSimilarEntities(context.Background(), "Nina", ScopeAll)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "Nina", got[0].Matched)
	assert.Equal(t, MatchExact, got[0].Kind)
	assert.LessOrEqual(t, len(got), 5)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
	}

	speakersOnly, err := m.FindSimilarEntities(context.Background(), "Nina", ScopeSpeakers)
	require.NoError(t, err)
	for _, match := range speakersOnly {
		assert.NotEqual(t, "Gespräch mit Nina", match.Matched)
	}
}

func TestMatcher_FindSimilarEntities_Alias(t *testing.T) {
	m := NewMatcher(nil, nil, nil, Options{})

	got, err := m.FindSimilarEntities(context.Background(), "webhook", ScopeAll)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "hooks", got[0].Matched)
	assert.Equal(t, MatchAlias, got[0].Kind)
}
