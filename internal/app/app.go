// Package app wires the configured components together for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/straddle_tracker/internal/backfill"
	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
	"github.com/eddiefleurent/straddle_tracker/internal/config"
	"github.com/eddiefleurent/straddle_tracker/internal/marketdata"
	"github.com/eddiefleurent/straddle_tracker/internal/stats"
	"github.com/eddiefleurent/straddle_tracker/internal/storage"
	"github.com/eddiefleurent/straddle_tracker/internal/straddle"
)

// App holds one instrument's calculator, statistics engine and backfill
// orchestrator over a shared store.
type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Calendar   *calendar.Calendar
	Source     marketdata.PriceSource
	Store      storage.Interface
	Calculator *straddle.Calculator
	Engine     *stats.Engine
	Backfill   *backfill.Orchestrator
}

// New builds the components described by cfg. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	inst, err := cfg.GetInstrument()
	if err != nil {
		return nil, err
	}
	cal := calendar.NewWithHolidays(calendar.DefaultHolidays(), calendar.LoadLocation(cfg.Schedule.Timezone))

	source, err := marketdata.New(marketdata.Options{
		Provider:   cfg.MarketData.Provider,
		APIKey:     cfg.MarketData.APIKey,
		BaseURL:    cfg.MarketData.BaseURL,
		Sandbox:    cfg.MarketData.Sandbox,
		Location:   cal.Location(),
		Resilience: cfg.GetResilienceConfig(),
		Logger:     logger.WithField("component", "marketdata"),
	})
	if err != nil {
		return nil, fmt.Errorf("market data: %w", err)
	}

	store, err := storage.NewStorage(ctx, cfg.GetStorageConfig())
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	calc := straddle.NewCalculator(cal, source, store, inst, logger)
	return &App{
		Config:     cfg,
		Logger:     logger,
		Calendar:   cal,
		Source:     source,
		Store:      store,
		Calculator: calc,
		Engine:     stats.NewEngine(store, cal, cfg.Statistics, logger.WithField("component", "stats")),
		Backfill:   backfill.NewOrchestrator(calc, store, cal, logger.WithField("component", "backfill")),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
