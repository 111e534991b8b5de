package answer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall-api/internal/domain/entity"
)

func TestChunkPieces(t *testing.T) {
	cases := []string{
		"eins zwei drei vier fünf sechs sieben",
		"  führende Leerzeichen\nund  doppelte   Abstände ",
		"ein",
		"Absatz eins.\n\nAbsatz zwei hat mehr Wörter als fünf Stück.",
	}
	for _, text := range cases {
		pieces := chunkPieces(text, 5)
		require.NotEmpty(t, pieces)
		assert.Equal(t, text, strings.Join(pieces, ""))
		for _, p := range pieces {
			assert.LessOrEqual(t, len(strings.Fields(p)), 5)
		}
	}
	assert.Nil(t, chunkPieces("   ", 5))
	assert.Len(t, chunkPieces("a b c d e f g h i j k", 5), 3)
}

func TestFormatConversation(t *testing.T) {
	assert.Empty(t, FormatConversation(nil))

	var history []entity.Turn
	for i := 0; i < 7; i++ {
		history = append(history, entity.Turn{Role: entity.RoleUser, Content: strings.Repeat("x", i+1)})
	}
	history[6].Content = strings.Repeat("ä", 300)

	out := FormatConversation(history)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Bisheriger Gesprächsverlauf:", lines[0])
	assert.Equal(t, "user: xxx", lines[1])
	assert.LessOrEqual(t, len([]rune(strings.TrimPrefix(lines[5], "user: "))), 201)
}

func TestDedupe(t *testing.T) {
	a := result("A", "Gleicher Inhalt", 0.9)
	b := result("B", "  Gleicher Inhalt  ", 0.5)
	c := result("C", "Anderer Inhalt", 0.4)
	hashed := result("D", "ignoriert", 0.3)
	hashed.Chunk.ContentHash = "h1"
	hashedDup := result("E", "auch ignoriert", 0.2)
	hashedDup.Chunk.ContentHash = "h1"

	out := Dedupe([]*entity.RetrievalResult{a, nil}, []*entity.RetrievalResult{b, c}, []*entity.RetrievalResult{hashed, hashedDup})
	require.Len(t, out, 3)
	assert.Same(t, a, out[0])
	assert.Same(t, c, out[1])
	assert.Same(t, hashed, out[2])
}

func TestJudgeContextLimits(t *testing.T) {
	var results []*entity.RetrievalResult
	for i := 0; i < 7; i++ {
		results = append(results, result("T", strings.Repeat("w", 150), 0.5))
	}
	lines := strings.Split(judgeContext(results), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, strings.Repeat("w", 100)+"...", lines[0])
}
