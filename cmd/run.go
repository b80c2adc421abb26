package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch one batch and write it",
		Args:  cobra.NoArgs,
		RunE:  runBatch,
	}
}

// runBatch is shared by `run` and the bare root command.
func runBatch(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	report, err := rt.runner.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	for _, r := range report.Batch.Reports {
		if r.Err != nil {
			rt.logger.Warn("source failed", zap.String("source", r.Source), zap.Error(r.Err))
		}
	}
	cmd.Printf("wrote %d articles to %s\n", report.Batch.Total, report.Output.JSONURI)
	return nil
}
