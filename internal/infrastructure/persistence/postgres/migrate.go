package postgres

import (
	"context"
	"fmt"
	"regexp"

	"recall-api/internal/domain/entity"
	"recall-api/pkg/logger"
)

var tsConfigPattern = regexp.MustCompile(`^[a-z_]+$`)

// tsConfig 全文检索配置名，作为 regconfig 字面量拼入 SQL
func (c *Client) tsConfig() string {
	name := "simple"
	if c.config != nil && tsConfigPattern.MatchString(c.config.TextSearchConfig) {
		name = c.config.TextSearchConfig
	}
	return "'" + name + "'::regconfig"
}

// Migrate 建表并创建检索所需索引，可重复执行
func (c *Client) Migrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.Migrate")
	defer span.End()

	db := c.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&entity.Document{},
		&entity.Chunk{},
		&entity.ChunkTokenEmbedding{},
		&entity.IngestionJob{},
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("auto migrate: %w", err)
	}

	statements := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_chunks_content_fts ON chunks USING GIN (to_tsvector(%s, content))`, c.tsConfig()),
		`CREATE INDEX IF NOT EXISTS idx_documents_created_at_desc ON documents (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc_tier_ordinal ON chunks (document_id, tier, ordinal)`,
		`CREATE INDEX IF NOT EXISTS idx_ingestion_jobs_created_at ON ingestion_jobs (created_at DESC)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("migrate index: %w", err)
		}
	}

	logger.Info(ctx, "database migrated", "text_search_config", c.tsConfig())
	return nil
}
