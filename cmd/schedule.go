package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-aggregator/internal/scheduler"
)

func newScheduleCmd() *cobra.Command {
	var spec string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run batches on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if spec == "" {
				spec = rt.cfg.Schedule.Cron
			}
			logger := rt.logger.Named("scheduler")
			s, err := scheduler.New(spec, func(ctx context.Context) {
				if _, err := rt.runner.RunOnce(ctx); err != nil {
					logger.Error("scheduled batch failed", zap.Error(err))
				}
			}, logger)
			if err != nil {
				return err
			}
			return s.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "cron expression overriding schedule.cron")
	return cmd
}
