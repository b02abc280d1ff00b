package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "plateful",
	Short: "Recipe ingestion and dedup pipeline",
	Long:  "Ingests recipes from URLs, pasted text, videos, and photos; dedupes against a shared cache; stores immutable originals with user-owned forks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
