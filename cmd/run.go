package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/model"
)

// runSummary is printed after a run, successful or not.
type runSummary struct {
	RunID  string           `json:"run_id"`
	Result *model.RunResult `json:"result"`
	Files  []string         `json:"files,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full flow estimation",
	Long:  "Loads every input, builds zone features, aggregates the survey, queries the driving and walking matrices, predicts trips and mode split, and exports the flow record sets.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		out, runErr := env.Pipeline.Run(ctx)

		if env.Metrics != nil && cfg.Metrics.TextfilePath != "" {
			if err := env.Metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
				zap.L().Warn("failed to write metrics textfile", zap.Error(err))
			}
		}

		if out != nil && out.Result != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(runSummary{RunID: out.RunID, Result: out.Result, Files: out.Files}); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
