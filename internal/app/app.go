// Package app provides the top-level lifecycle for the repricer service. It
// wires the stores, caches, clients, and collaborators together, seeds the
// configured marketplaces, and runs the scheduler loop next to the HTTP API
// until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdtonline/repricer/internal/config"
	"github.com/sdtonline/repricer/internal/domain"
	"github.com/sdtonline/repricer/internal/repricer"
	"github.com/sdtonline/repricer/internal/scheduler"
	"github.com/sdtonline/repricer/internal/server"
	"github.com/sdtonline/repricer/internal/server/handler"
)

// shutdownGrace bounds how long the HTTP server waits for in-flight
// requests during shutdown.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger,
// and the cleanup functions run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and blocks until the context is cancelled. The
// scheduler loop and the HTTP server run as sibling goroutines; either one
// failing stops the other.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting repricer",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Bool("test_mode", a.cfg.Repricing.TestMode),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if err := seedMarketplaces(ctx, deps.Marketplaces, a.cfg.Marketplaces); err != nil {
		return err
	}

	orchestrator := repricer.NewOrchestrator(repricer.Params{
		Config: repricer.Config{
			BatchSize:   a.cfg.Repricing.BatchSize,
			Concurrency: a.cfg.Repricing.Concurrency,
			TestMode:    a.cfg.Repricing.TestMode,
			DefaultPolicy: repricer.Policy{
				UndercutPercent:       a.cfg.Repricing.UndercutPercent,
				MinMarginPercent:      a.cfg.Repricing.MinMarginPercent,
				MaxDailyChangePercent: a.cfg.Repricing.MaxDailyChangePercent,
				StepUpType:            domainStepUpType(a.cfg.Repricing.StepUpType),
				StepUpValue:           a.cfg.Repricing.StepUpValue,
				StepUpIntervalHours:   a.cfg.Repricing.StepUpIntervalHours,
			},
		},
		Marketplaces: deps.Marketplaces,
		Skus:         deps.Skus,
		Profiles:     deps.Profiles,
		Runs:         deps.Runs,
		Events:       deps.Events,
		Settings:     deps.Settings,
		TestData:     deps.TestData,
		Feeds:        deps.Feeds,
		API:          deps.API,
		Alerts:       deps.Sink,
		Locks:        deps.Locks,
		Logger:       a.logger,
	})

	sched := scheduler.New(scheduler.Config{
		Tick:      time.Duration(a.cfg.Scheduler.TickSeconds) * time.Second,
		QueueSize: a.cfg.Scheduler.QueueSize,
	}, orchestrator, deps.Marketplaces, deps.Skus, deps.Snapshots, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		}, server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Runs:     handler.NewRunHandler(deps.Runs, sched, a.logger),
			Events:   handler.NewEventHandler(deps.Events, a.logger),
			Alerts:   handler.NewAlertHandler(deps.Alerts, a.logger),
			Profiles: handler.NewProfileHandler(deps.Profiles, a.logger),
			Settings: handler.NewSettingHandler(deps.Settings, a.logger),
			Prices:   handler.NewPriceHandler(deps.Marketplaces, deps.Skus, deps.API, deps.BlobWriter, a.logger),
			TestData: handler.NewTestDataHandler(deps.Ingester, a.logger),
		}, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// g.Wait returns context.Canceled on a clean shutdown; main treats
	// that as success.
	return g.Wait()
}

func domainStepUpType(s string) domain.StepUpType {
	if s == string(domain.StepUpAbsolute) {
		return domain.StepUpAbsolute
	}
	return domain.StepUpPercentage
}

// Close tears down all resources in reverse registration order. Safe to call
// more than once.
func (a *App) Close() {
	a.logger.Info("shutting down repricer")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
