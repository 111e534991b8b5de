// Package main 运维命令行 recallctl：建表、导入、检索与签发令牌
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"recall-api/internal/config"
	"recall-api/internal/infrastructure/eino/callback"
	"recall-api/pkg/logger"
)

var (
	configDir string
	verbose   bool
	timeout   time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "recallctl",
	Short:         "Operate the personal recall knowledge base",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		_ = godotenv.Load()

		var err error
		if configDir != "" {
			cfg, err = config.LoadFrom(configDir)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Observability.Logging.Level
		if verbose {
			level = "debug"
		}
		logger.InitWithWriter(os.Stderr, level, "text")
		callback.Init()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall command timeout")

	rootCmd.AddCommand(migrateCmd, ingestCmd, askCmd, searchCmd, tokenCmd, cacheCmd)
}

// commandContext 带整体超时的上下文
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
