package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/export"
	"github.com/sells-group/odflow/internal/odagg"
	"github.com/sells-group/odflow/internal/pipeline"
)

var odTotalsCmd = &cobra.Command{
	Use:   "od-totals",
	Short: "Aggregate the OD survey per zone",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("od-totals"); err != nil {
			return err
		}

		in, err := pipeline.NewLoader(cfg, initResolver()).Load(ctx, pipeline.PartOD)
		if err != nil {
			return err
		}
		totals, err := pipeline.Totals(in.OD, cfg.OD.DropTrailing, cfg.OD.FillMissingTotals)
		if err != nil {
			return err
		}

		path := filepath.Join(cfg.Output.Dir, export.FileZoneTotals)
		if err := export.WriteTableCSV(path, totals, export.ZoneKey(odagg.KeyColumn)); err != nil {
			return err
		}
		zap.L().Info("zone totals written", zap.Int("zones", totals.Len()), zap.String("path", path))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(odTotalsCmd)
}
