package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "odflow",
	Short: "Zone trip generation and mode-split flow estimation",
	Long:  "Builds zone features from census, DENUE, MiBici and GTFS inputs, aggregates an OD survey, queries travel-time matrices, predicts trips and mode split per zone pair and exports the flow record sets.",
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
