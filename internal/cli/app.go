package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"okx-exec/internal/api"
	"okx-exec/internal/engine"
	"okx-exec/internal/events"
	"okx-exec/internal/ledger"
	"okx-exec/internal/market"
	"okx-exec/internal/monitor"
	"okx-exec/internal/persistence"
	"okx-exec/internal/precision"
	"okx-exec/internal/pricing"
	"okx-exec/internal/reconciliation"
	"okx-exec/internal/strategy"
	"okx-exec/pkg/config"
	"okx-exec/pkg/db"
	"okx-exec/pkg/exchanges/common"
	"okx-exec/pkg/exchanges/okx"
	"okx-exec/pkg/exchanges/paper"
	"okx-exec/pkg/logger"
	okxstream "okx-exec/pkg/market/okx"
)

// BuildOptions tweaks Build for offline runs and tests.
type BuildOptions struct {
	// Offline replaces every OKX dependency with local fakes.
	Offline bool
	// MockEvery is the wall time between synthetic bars when Offline.
	MockEvery time.Duration
}

// App is a fully wired engine with its side services.
type App struct {
	cfg     *config.Config
	bus     *events.Bus
	client  *okx.Client // nil when offline
	paper   *paper.Gateway
	ledger  *ledger.Ledger
	feed    *market.Feed
	runner  *engine.Runner
	metrics *monitor.Metrics
	monitor *monitor.Monitor
	db      *db.Database
	journal *persistence.Journal
	recon   *reconciliation.Service
	api     *api.Server
	log     *logrus.Entry
}

// Build wires every component from cfg. Network calls made here are the
// market metadata load and, for swaps, setting leverage.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (*App, error) {
	a := &App{
		cfg:     cfg,
		bus:     events.NewBus(),
		metrics: monitor.NewMetrics(),
		log:     logger.Component("app"),
	}
	typ := common.InstrumentType(cfg.Broker.Type)

	var gw common.Gateway
	var candles common.CandleSource
	switch {
	case opts.Offline:
		a.paper = paper.New(paper.Config{FeeRate: cfg.Broker.FeeRate, LimitBand: 0.05}, nil, logger.Component("paper"))
		a.paper.AddMarket(offlineMarket(cfg.Broker.Instrument, typ))
		gw = a.paper
	case cfg.Broker.DryRun:
		a.client = newClient(cfg)
		a.paper = paper.New(paper.Config{FeeRate: cfg.Broker.FeeRate}, a.client, logger.Component("paper"))
		gw, candles = a.paper, a.client
	default:
		if err := cfg.RequireCredentials(); err != nil {
			return nil, err
		}
		a.client = newClient(cfg)
		a.client.StartTimeSync(ctx)
		gw, candles = a.client, a.client
	}

	norm, err := precision.Load(ctx, gw, typ)
	if err != nil {
		return nil, err
	}
	a.ledger, err = ledger.New(ctx, gw, norm, pricing.NewAdjuster(gw, cfg.Broker.Slippage, logger.Component("pricing")),
		ledger.Config{
			Instrument: cfg.Broker.Instrument,
			Type:       typ,
			Leverage:   cfg.Broker.Leverage,
			MarginMode: common.MarginMode(cfg.Broker.MarginMode),
			Cash:       cfg.Broker.Cash,
		}, a.bus, logger.Component("ledger"))
	if err != nil {
		return nil, err
	}

	var stream market.Streamer
	switch {
	case opts.Offline:
		stream = market.MockStream{Every: opts.MockEvery}
	case cfg.Feed.Stream:
		stream, err = okxstream.NewStreamClient(okxstream.StreamConfig{
			Instrument: cfg.Broker.Instrument,
			Interval:   cfg.Feed.Interval,
			Heartbeat:  cfg.Feed.Heartbeat,
		}, cfg.Exchange.Sandbox, logger.Component("stream"))
		if err != nil {
			return nil, err
		}
	}
	a.feed, err = market.NewFeed(market.FeedConfig{
		Instrument:   cfg.Broker.Instrument,
		Interval:     cfg.Feed.Interval,
		PageSize:     cfg.Feed.PageSize,
		PollInterval: cfg.Feed.PollInterval,
		QueueSize:    cfg.Feed.QueueSize,
	}, candles, stream, a.bus, logger.Component("feed"))
	if err != nil {
		return nil, err
	}

	strat, err := strategy.New(strategy.Config{Type: cfg.Strategy.Type, Parameters: cfg.Strategy.Parameters}, logger.Component("strategy"))
	if err != nil {
		return nil, err
	}
	mode := "live"
	if cfg.Broker.DryRun || opts.Offline {
		mode = "dry-run"
	}
	ecfg := engine.Config{
		Ledger:   a.ledger,
		Strategy: strat,
		Bars:     a.feed,
		Bus:      a.bus,
		Metrics:  a.metrics,
		Meta: engine.SystemStatus{
			Version:    Version,
			Mode:       mode,
			Exchange:   cfg.Exchange.Name,
			Instrument: cfg.Broker.Instrument,
			Interval:   cfg.Feed.Interval,
			Sandbox:    cfg.Exchange.Sandbox,
		},
		Log: logger.Component("engine"),
	}
	if a.paper != nil {
		ecfg.Marker = a.paper
	}
	if a.runner, err = engine.New(ecfg); err != nil {
		return nil, err
	}
	a.monitor = &monitor.Monitor{Bus: a.bus, Metrics: a.metrics, Log: logger.Component("monitor")}

	if cfg.Journal.Enabled {
		if a.db, err = db.Open(cfg.Journal.Path); err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = persistence.NewJournal(a.db, a.bus, time.Second, logger.Component("journal"))
	}
	if cfg.Reconcile.Enabled {
		a.recon = reconciliation.NewService(gw, a.ledger, a.bus, cfg.Reconcile.Interval, cfg.Reconcile.Tolerance, logger.Component("reconciliation"))
	}
	if cfg.API.Enabled {
		apiOpts := api.Options{Bus: a.bus, Metrics: a.metrics, Log: logger.Component("api")}
		if a.journal != nil {
			apiOpts.Journal = a.journal
		}
		if a.recon != nil {
			apiOpts.Recon = a.recon
		}
		a.api = api.NewServer(a.runner, apiOpts)
	}
	return a, nil
}

// Run starts the side services, preloads history and drives the engine
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.monitor.Start(ctx)
	if a.journal != nil {
		a.journal.Start(ctx)
	}
	if a.recon != nil {
		a.recon.Start(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.api != nil {
		g.Go(func() error { return a.api.Run(ctx, a.cfg.API.Addr) })
	}
	g.Go(func() error {
		if err := a.feed.Preload(ctx, a.cfg.Feed.Preload); err != nil {
			a.log.WithError(err).Warn("preload failed")
		}
		if err := a.feed.Start(ctx); err != nil {
			return err
		}
		return a.runner.Run(ctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.log.WithField("account", a.ledger.Snapshot()).Info("stopped")
	return err
}

// Runner exposes the engine for status queries.
func (a *App) Runner() *engine.Runner { return a.runner }

// Close flushes the journal and closes the database.
func (a *App) Close() error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// offlineMarket invents tick and lot precision for a synthetic run.
func offlineMarket(instrument string, typ common.InstrumentType) common.Market {
	m := common.Market{
		ID:         instrument,
		Type:       typ,
		PriceTick:  decimal.RequireFromString("0.001"),
		AmountStep: decimal.RequireFromString("0.0001"),
	}
	if parts := strings.Split(instrument, "-"); len(parts) >= 2 {
		m.Base, m.Quote = parts[0], parts[1]
	}
	if typ == common.InstrumentSwap {
		m.ContractSize = 1
		m.AmountStep = decimal.RequireFromString("1")
	}
	return m
}
