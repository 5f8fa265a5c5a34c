package main

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/export"
	"github.com/sells-group/odflow/internal/pipeline"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Build the zone attribute and feature tables",
	Long:  "Summarises census blocks, DENUE units, MiBici stations, GTFS stops and survey totals per zone and writes the attribute and feature tables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("zones"); err != nil {
			return err
		}

		parts := pipeline.PartZones | pipeline.PartAttributes
		if cfg.Inputs.ODSurvey != "" {
			parts |= pipeline.PartOD
		}
		in, err := pipeline.NewLoader(cfg, initResolver()).Load(ctx, parts)
		if err != nil {
			return err
		}

		tables, err := pipeline.BuildZoneTables(cfg, in)
		if err != nil {
			return eris.Wrap(err, "zones")
		}

		attrPath := filepath.Join(cfg.Output.Dir, export.FileZones)
		if err := export.WriteTableCSV(attrPath, tables.Attributes, export.ZoneKey(cfg.Inputs.ZoneIDField)); err != nil {
			return err
		}
		featPath := filepath.Join(cfg.Output.Dir, export.FileFeatures)
		if err := export.WriteTableCSV(featPath, tables.Features, export.ZoneKey(cfg.Inputs.ZoneIDField)); err != nil {
			return err
		}

		zap.L().Info("zone tables written",
			zap.Int("zones", tables.Features.Len()),
			zap.Int("attributes", len(tables.Attributes.Columns())),
			zap.String("attributes_path", attrPath),
			zap.String("features_path", featPath),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(zonesCmd)
}
