package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the run store and PostGIS export tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		zap.L().Info("run store migrated", zap.String("driver", cfg.Store.Driver))

		if !cfg.PostGIS.Enabled {
			return nil
		}
		pool, err := initPostGIS(ctx)
		if err != nil {
			return err
		}
		pool.Close()
		zap.L().Info("postgis export tables migrated", zap.String("schema", cfg.PostGIS.Schema))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
