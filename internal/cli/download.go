package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"okx-exec/internal/market"
	"okx-exec/pkg/config"
	"okx-exec/pkg/exchanges/okx"
	"okx-exec/pkg/logger"
)

func newDownloadCmd() *cobra.Command {
	var (
		fromStr string
		toStr   string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download closed bars of the configured instrument and write CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Log); err != nil {
				return err
			}
			defer logger.Close()

			from, err := parseTime(fromStr)
			if err != nil {
				return fmt.Errorf("bad --from: %w", err)
			}
			to := time.Now()
			if toStr != "" {
				if to, err = parseTime(toStr); err != nil {
					return fmt.Errorf("bad --to: %w", err)
				}
			}
			if !from.Before(to) {
				return fmt.Errorf("--from %s must be before --to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
			}

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := download(cmd.Context(), cfg, from, to, f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&fromStr, "from", "", "start time, RFC3339 or YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&toStr, "to", "", "end time, exclusive; defaults to now")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output CSV path (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func download(ctx context.Context, cfg *config.Config, from, to time.Time, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client := newClient(cfg)
	feed, err := market.NewFeed(market.FeedConfig{
		Instrument: cfg.Broker.Instrument,
		Interval:   cfg.Feed.Interval,
		PageSize:   cfg.Feed.PageSize,
	}, client, nil, nil, logger.Component("feed"))
	if err != nil {
		return err
	}
	bars, err := feed.Fetch(ctx, from, to)
	if err != nil {
		return err
	}
	logger.Logger.WithField("bars", len(bars)).Info("download complete")
	return market.WriteCSV(w, bars)
}

func newClient(cfg *config.Config) *okx.Client {
	return okx.NewClient(okx.Config{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		Passphrase: cfg.Exchange.Passphrase,
		Sandbox:    cfg.Exchange.Sandbox,
		BaseURL:    cfg.Exchange.BaseURL,
		Timeout:    cfg.Exchange.Timeout,
	}, logger.Component("okx"))
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, s, time.UTC)
}
