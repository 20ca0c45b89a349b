package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eisenhauerIO/impact-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "impact",
	Short: "Configuration-driven causal impact evaluation",
	Long:  "Runs impact evaluations from declarative configurations: retrieves business metrics, applies transforms, fits causal models, and records every run in a catalog.",
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
