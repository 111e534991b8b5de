package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall-api/internal/domain/entity"
)

func longText(sentences int) string {
	parts := make([]string, 0, sentences)
	for i := 0; i < sentences; i++ {
		parts = append(parts, fmt.Sprintf("Sentence number %d talks about retrieval pipelines and ranking signals in detail.", i))
	}
	return strings.Join(parts, " ")
}

func byTier(chunks []*entity.Chunk, tier entity.Tier) []*entity.Chunk {
	var out []*entity.Chunk
	for _, c := range chunks {
		if c.Tier == tier {
			out = append(out, c)
		}
	}
	return out
}

func reconstruct(details []*entity.Chunk) string {
	parts := make([]string, 0, len(details))
	for _, d := range details {
		parts = append(parts, strings.TrimSpace(d.Content[d.Overlap:]))
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func TestChunk_EmptyInputYieldsSummaryOnly(t *testing.T) {
	chunks := New(DefaultConfig()).Chunk(Input{Text: "   "})
	require.Len(t, chunks, 1)
	assert.Equal(t, entity.TierSummary, chunks[0].Tier)
	assert.Equal(t, 1.0, chunks[0].Importance)
	assert.Equal(t, 0, chunks[0].Ordinal)
}

func TestChunk_DetailsReconstructText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetailTargetTokens = 60
	cfg.OverlapTokens = 25
	text := longText(40)

	chunks := New(cfg).Chunk(Input{Text: text})
	details := byTier(chunks, entity.TierDetail)
	require.Greater(t, len(details), 1)

	assert.Equal(t, strings.Join(strings.Fields(text), " "), reconstruct(details))

	for i, d := range details {
		assert.GreaterOrEqual(t, d.Overlap, 0)
		assert.Less(t, d.Overlap, len(d.Content), "overlap must leave new content in chunk %d", i)
		if i > 0 && d.Overlap > 0 {
			assert.True(t, strings.HasSuffix(details[i-1].Content, d.Content[:d.Overlap]))
		}
	}
}

func TestChunk_OrdinalsUniqueAndOrdered(t *testing.T) {
	chunks := New(DefaultConfig()).Chunk(Input{Text: longText(30)})
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
	}
	assert.Len(t, byTier(chunks, entity.TierSummary), 1)
	assert.Len(t, byTier(chunks, entity.TierTopic), 6)
}

func TestChunk_NoSentenceBoundary(t *testing.T) {
	text := strings.Repeat("word ", 50) + "end"
	chunks := New(DefaultConfig()).Chunk(Input{Text: text})
	details := byTier(chunks, entity.TierDetail)
	require.Len(t, details, 1)
	assert.Equal(t, strings.TrimSpace(text), details[0].Content)
	assert.Equal(t, 0, details[0].Overlap)
}

func TestChunk_SummaryPlaceholderTruncates(t *testing.T) {
	text := strings.Repeat("a", 1500)
	chunks := New(DefaultConfig()).Chunk(Input{Text: text})
	want := "[Summary to be generated] " + strings.Repeat("a", 1000) + "..."
	assert.Equal(t, want, chunks[0].Content)
}

func TestChunk_SpeakerChunksNeverMixSpeakers(t *testing.T) {
	segs := []Segment{
		{Speaker: "A", Text: "Hello there, welcome to the show."},
		{Speaker: "A", Text: "Today we talk about search."},
		{Speaker: "B", Text: "Thanks for having me."},
		{Speaker: "A", Text: "Let us start with chunking."},
		{Speaker: "B", Text: strings.Repeat("long answer ", 300)},
		{Speaker: "B", Text: strings.Repeat("more detail ", 300)},
	}
	cfg := DefaultConfig()
	chunks := New(cfg).Chunk(Input{Text: "ignored for details", Speakers: segs})
	details := byTier(chunks, entity.TierDetail)
	require.Len(t, details, 5)

	speakers := []string{"A", "B", "A", "B", "B"}
	for i, d := range details {
		assert.Equal(t, speakers[i], d.SpeakerName())
	}
	assert.Equal(t, "Hello there, welcome to the show. Today we talk about search.", details[0].Content)
	for _, d := range details {
		assert.LessOrEqual(t, d.TokenCount, cfg.DetailMaxTokens)
	}
}

func TestChunk_TopicsByTimeWindow(t *testing.T) {
	at := func(sec float64) *float64 { return &sec }
	timed := []Segment{
		{Start: at(5), End: at(40), Text: "intro"},
		{Start: at(300), End: at(320), Text: "setup"},
		{Start: at(650), Text: "deep dive"},
		{Start: at(1100), End: at(1180), Text: "questions"},
		{Start: at(2000), End: at(2030), Text: "wrap up"},
	}
	chunks := New(DefaultConfig()).Chunk(Input{Text: "intro setup deep dive questions wrap up", Timed: timed})
	topics := byTier(chunks, entity.TierTopic)
	require.Len(t, topics, 3)

	assert.Equal(t, "intro setup", topics[0].Content)
	assert.Equal(t, 5.0, *topics[0].StartTime)
	assert.Equal(t, 320.0, *topics[0].EndTime)

	// 650 与 1100 同属 [605, 1205) 窗口
	assert.Equal(t, "deep dive questions", topics[1].Content)
	assert.Equal(t, 605.0, *topics[1].StartTime)
	assert.Equal(t, 1180.0, *topics[1].EndTime)

	// [1205, 1805) 为空窗口，直接跳过
	assert.Equal(t, "wrap up", topics[2].Content)
	assert.Equal(t, 1805.0, *topics[2].StartTime)
	assert.Equal(t, 2030.0, *topics[2].EndTime)
	for _, tc := range topics {
		assert.Equal(t, 0.8, tc.Importance)
	}
}

func TestChunk_TopicWindowEndUsesLastSegment(t *testing.T) {
	at := func(sec float64) *float64 { return &sec }
	timed := []Segment{
		{Start: at(0), Text: "a"},
		{Start: at(120), Text: "b"},
		{Start: at(590), Text: "c"},
		{Start: at(600), Text: "d"},
	}
	topics := byTier(New(DefaultConfig()).Chunk(Input{Text: "a b c d", Timed: timed}), entity.TierTopic)
	require.Len(t, topics, 2)
	assert.Equal(t, 590.0, *topics[0].EndTime)
	assert.Equal(t, 600.0, *topics[1].StartTime)
	assert.Equal(t, 600.0, *topics[1].EndTime)
}

func TestChunk_OversizedSpeakerSegmentSplitsBySentence(t *testing.T) {
	cfg := DefaultConfig()
	at := func(sec float64) *float64 { return &sec }
	body := longText(500)
	require.Greater(t, EstimateTokens(body), cfg.DetailMaxTokens*5)

	segs := []Segment{
		{Speaker: "B", Text: "Kurze Einleitung."},
		{Speaker: "A", Start: at(10), End: at(900), Text: body},
		{Speaker: "B", Text: "Danke."},
	}
	details := byTier(New(cfg).Chunk(Input{Text: body, Speakers: segs}), entity.TierDetail)
	require.Greater(t, len(details), 3)

	assert.Equal(t, "B", details[0].SpeakerName())
	assert.Equal(t, "B", details[len(details)-1].SpeakerName())

	middle := details[1 : len(details)-1]
	for i, d := range middle {
		assert.Equal(t, "A", d.SpeakerName(), "chunk %d", i)
		assert.LessOrEqual(t, d.TokenCount, cfg.DetailMaxTokens, "chunk %d", i)
		assert.LessOrEqual(t, EstimateTokens(d.Content), cfg.DetailMaxTokens, "chunk %d", i)
		require.NotNil(t, d.StartTime)
		assert.Equal(t, 10.0, *d.StartTime)
	}
	assert.Equal(t, strings.Join(strings.Fields(body), " "), reconstruct(middle))
}

func TestChunk_DetailImportance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetailTargetTokens = 10
	cfg.OverlapTokens = 0
	text := "This opening sentence is long enough. A middle sentence is here too. " +
		"Another plain middle sentence. The final important question comes last."
	details := byTier(New(cfg).Chunk(Input{Text: text}), entity.TierDetail)
	require.Len(t, details, 4)

	// 首尾位置得分为 1，中间较低
	assert.InDelta(t, (1.0+0.5)/2, details[0].Importance, 1e-9)
	assert.InDelta(t, (1.0+0.8)/2, details[3].Importance, 1e-9)
	assert.Less(t, details[1].Importance, details[0].Importance)
	for _, d := range details {
		assert.GreaterOrEqual(t, d.Importance, 0.0)
		assert.LessOrEqual(t, d.Importance, 1.0)
	}
}

func TestChunk_MetadataCopiedPerChunk(t *testing.T) {
	chunks := New(DefaultConfig()).Chunk(Input{Text: "One. Two.", Metadata: entity.Metadata{"source": "youtube"}})
	chunks[0].Metadata["source"] = "changed"
	assert.Equal(t, "youtube", chunks[1].Metadata["source"])
}
