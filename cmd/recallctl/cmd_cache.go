package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recall-api/internal/wire"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the query embedding cache",
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drop all cached query embeddings",
	Args:  cobra.NoArgs,
	RunE:  runCacheFlush,
}

func init() {
	cacheCmd.AddCommand(cacheFlushCmd)
}

func runCacheFlush(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	kit, cleanup, err := wire.InitializeToolkit(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	n, err := kit.Cache.Invalidate(ctx)
	if err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached embeddings\n", n)
	return nil
}
