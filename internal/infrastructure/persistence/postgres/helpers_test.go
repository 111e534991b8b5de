package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"recall-api/internal/config"
	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
)

func TestLikePatterns(t *testing.T) {
	got := likePatterns([]string{" Pflege ", "pflege", "", "50%_rabatt", `a\b`})
	assert.Equal(t, []string{"%pflege%", `%50\%\_rabatt%`, `%a\\b%`}, got)
	assert.Empty(t, likePatterns(nil))
}

func TestChunkFilterSQL(t *testing.T) {
	where, args := chunkFilterSQL(nil)
	assert.Empty(t, where)
	assert.Nil(t, args)

	after := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	where, args = chunkFilterSQL(&repository.ChunkFilter{
		Speaker:      "Nina",
		SourceKind:   entity.SourceKindAudio,
		Tiers:        []entity.Tier{entity.TierDetail},
		CreatedAfter: &after,
	})
	assert.Equal(t, " AND LOWER(c.speaker) = LOWER(?) AND d.source_kind = ? AND c.tier IN ? AND d.created_at >= ?", where)
	assert.Equal(t, []any{"Nina", "audio", []string{"detail"}, after}, args)
}

func TestTSConfig(t *testing.T) {
	c := &Client{config: &config.PostgresConfig{TextSearchConfig: "german"}}
	assert.Equal(t, "'german'::regconfig", c.tsConfig())

	c.config.TextSearchConfig = "german'; DROP TABLE chunks; --"
	assert.Equal(t, "'simple'::regconfig", c.tsConfig())
}

func TestPositive(t *testing.T) {
	assert.Equal(t, 7, positive(0, 7))
	assert.Equal(t, 3, positive(3, 7))
}
