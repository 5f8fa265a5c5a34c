package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/export"
	"github.com/sells-group/odflow/internal/ingest"
	"github.com/sells-group/odflow/internal/pipeline"
)

var traveltimeCmd = &cobra.Command{
	Use:   "traveltime",
	Short: "Build the driving and walking travel-time matrices",
	Long:  "Queries the matrix service for every zone pair, driving first, then a quota cool-down, then walking, and writes the joined long table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "traveltime")
		if err != nil {
			return err
		}
		defer env.Close()

		in, err := env.Loader.Load(ctx, pipeline.PartZones)
		if err != nil {
			return err
		}
		travel, err := env.Builder.BuildAll(ctx, in.ZoneIDs(), ingest.Coordinates(in.Zones))
		if err != nil {
			return err
		}

		path := filepath.Join(cfg.Output.Dir, export.FileTravelTime)
		if err := export.WriteTableCSV(path, travel, export.PairKey); err != nil {
			return err
		}

		calls, cooldowns := env.Scheduler.Stats()
		zap.L().Info("travel times written",
			zap.Int("pairs", travel.Len()),
			zap.Int("matrix_calls", calls),
			zap.Int("cooldowns", cooldowns),
			zap.String("path", path),
		)
		if env.Metrics != nil && cfg.Metrics.TextfilePath != "" {
			return env.Metrics.WriteTextfile(cfg.Metrics.TextfilePath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(traveltimeCmd)
}
