// Package cmd defines the climatedb command line.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/app"
	"github.com/JakeFAU/climatedb/internal/config"
	"github.com/JakeFAU/climatedb/internal/logging"
	"github.com/JakeFAU/climatedb/internal/metrics"
)

type appKey struct{}

// newApp is the application factory. Tests replace it to inject in-memory
// storage and a fake search upstream.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// NewRootCmd creates the root command and its subcommands.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "climatedb",
		Short: "Collects and archives news coverage of climate change.",
		Long: `climatedb searches news outlets for climate change coverage, keeps an
ordered log of candidate article URLs and archives the raw HTML and cleaned
metadata of every article it can parse.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.OutputPaths...)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return
			}
			a.Close()
			// Syncing stderr fails on some platforms; nothing useful to do then.
			_ = a.Logger.Sync()
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")

	cmd.AddCommand(
		newCollectCmd(),
		newParseCmd(),
		newSourcesCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		return nil, errors.New("application services not initialized")
	}
	a, ok := ctx.Value(appKey{}).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// pushMetrics sends the run's counters to the Pushgateway when one is
// configured. Failures are logged, never returned.
func pushMetrics(ctx context.Context, a *app.App) {
	url := a.Config.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	if err := metrics.Push(ctx, url, a.Config.Metrics.Job); err != nil {
		a.Logger.Warn("Metrics push failed", zap.Error(err))
		return
	}
	a.Logger.Debug("Metrics pushed", zap.String("gateway", url))
}

// Execute runs the root command under ctx.
func Execute(ctx context.Context) error {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		return fmt.Errorf("climatedb: %w", err)
	}
	return nil
}
