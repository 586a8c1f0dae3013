package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hazard-loss",
	Short: "Hazard-to-asset direct loss and AAL engine",
	Long:  "Associates insured assets with hazard samples, computes direct loss per return period, and maintains province AAL aggregates in batch and incremental modes.",
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
