// Package cmd defines the newsagg command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-aggregator/internal/app"
	"github.com/JakeFAU/realtime-news-aggregator/internal/config"
	"github.com/JakeFAU/realtime-news-aggregator/internal/logging"
)

// appKeyType is the key for storing the runtime in the command context.
type appKeyType string

const appKey appKeyType = "app"

// Runner is what the subcommands need from the application.
type Runner interface {
	RunOnce(ctx context.Context) (app.Report, error)
	Close()
}

// runtime bundles the loaded configuration with the services built from it.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	runner Runner
}

// newRunner is the application factory. Tests replace it.
var newRunner = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "newsagg",
		Short: "Aggregates news from markup and feed sources into one document.",
		Long: `newsagg fetches every configured source concurrently, validates and
de-duplicates the articles, and writes a single timestamped JSON document
plus a plain-text summary. Without a subcommand it behaves like "run".`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runBatch,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			runner, err := newRunner(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			rt := &runtime{cfg: cfg, logger: logger, runner: runner}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return
			}
			rt.runner.Close()
			_ = rt.logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON, or TOML)")
	cmd.AddCommand(newRunCmd(), newScheduleCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(appKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// Execute runs the root command against ctx.
func Execute(ctx context.Context) int {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "newsagg: %v\n", err)
		return 1
	}
	return 0
}
