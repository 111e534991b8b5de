package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity_Tiers(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Claude Code", "claude code"))
	assert.Equal(t, 0.8, Similarity("hooks", "Claude Code Hooks Tutorial"))
	assert.InDelta(t, 2.0/3.0, Similarity("mcp server setup", "setup mcp guide server"), 0.2)

	edit := Similarity("vermitlung", "vermittlung")
	assert.Greater(t, edit, 0.8)
	assert.Less(t, edit, 1.0)
}

func TestSimilarity_SelfIsOne(t *testing.T) {
	for _, s := range []string{"", "a", "Pflegekräfte aus Polen", "MCP-Server", "ÄÖÜ straße"} {
		assert.Equal(t, 1.0, Similarity(s, s), s)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"nina", "nino"},
		{"video von max", "max video"},
		{"Roboter", "robotik"},
		{"pflegekräfte", "betreuungskräfte"},
		{"abc", ""},
		{"kubernetes cluster", "cluster of kubernetes nodes"},
	}
	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), "%q vs %q", p[0], p[1])
	}
}

func TestExtractTerms(t *testing.T) {
	terms := ExtractTerms(`Was war nochmal das Video von Max über "claude code" Hooks?`)
	assert.Contains(t, terms, "video")
	assert.Contains(t, terms, "max")
	assert.Contains(t, terms, "claude code")
	assert.Contains(t, terms, "hooks")
	assert.NotContains(t, terms, "was")
	assert.NotContains(t, terms, "von")
	assert.NotContains(t, terms, "das")
}

func TestAliasTable_ExpandBothDirections(t *testing.T) {
	table := DefaultAliases()

	fromCanonical := table.Expand([]string{"polen"})
	assert.Contains(t, fromCanonical, "polnisch")
	assert.Contains(t, fromCanonical, "poland")

	fromAlias := table.Expand([]string{"webhook"})
	assert.Contains(t, fromAlias, "hooks")
	assert.Contains(t, fromAlias, "callback")

	assert.Equal(t, []string{"unrelated"}, table.Expand([]string{"Unrelated"}))
}

func TestParseAliases(t *testing.T) {
	table, err := ParseAliases([]byte("groups:\n  Robot: [roboter, bot]\n"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"bot", "robot", "roboter"}, table.Expand([]string{"BOT"}))

	_, err = ParseAliases([]byte("groups: [not a map"))
	assert.Error(t, err)
}

func TestAliasTable_Resolve(t *testing.T) {
	table := DefaultAliases()

	exact := table.Resolve("Caregiver")
	if assert.NotEmpty(t, exact) {
		assert.Equal(t, "pflegekräfte", exact[0].Matched)
		assert.Equal(t, MatchAlias, exact[0].Kind)
		assert.Equal(t, 1.0, exact[0].Confidence)
	}

	semantic := table.Resolve("youtube-kanal")
	if assert.NotEmpty(t, semantic) {
		assert.Equal(t, "video", semantic[0].Matched)
		assert.Equal(t, MatchSemantic, semantic[0].Kind)
	}
}
