package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recall-api/internal/wire"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables, full-text indexes and vector collections",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	m, cleanup, err := wire.InitializeMigrator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	if err := m.Postgres.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "postgres schema ready")

	if m.Vector == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "vector store disabled, skipped collections")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "vector collections ready")
	return nil
}
