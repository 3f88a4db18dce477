package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"okx-exec/pkg/config"
	"okx-exec/pkg/logger"
)

func newLiveCmd() *cobra.Command {
	var (
		dryRun  bool
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Run the strategy against live bars",
		Long: `Run the configured strategy until interrupted.

With --dry-run orders fill on a local paper venue while markets, price limits
and bars still come from OKX. --offline also replaces OKX with a synthetic
random-walk feed and needs no network.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dry-run") {
				cfg.Broker.DryRun = dryRun
			}
			if offline {
				cfg.Broker.DryRun = true
			}
			if err := logger.Init(cfg.Log); err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := Build(ctx, cfg, BuildOptions{Offline: offline})
			if err != nil {
				logger.Logger.WithError(err).Error("startup failed")
				return err
			}
			defer app.Close()
			return app.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fill orders on the paper venue")
	cmd.Flags().BoolVar(&offline, "offline", false, "synthetic bars and paper fills, no network")
	return cmd
}
