// Command straddled serves the straddle API and runs the daily calculation
// and weekly retention cleanup.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/straddle_tracker/internal/api"
	"github.com/eddiefleurent/straddle_tracker/internal/app"
	"github.com/eddiefleurent/straddle_tracker/internal/config"
	"github.com/eddiefleurent/straddle_tracker/internal/logging"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Environment.LogLevel, cfg.Environment.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Daemon stopped with error")
		os.Exit(1)
	}
	logger.Info("Daemon stopped successfully")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"mode":     cfg.Environment.Mode,
		"symbol":   cfg.Instrument.Symbol,
		"provider": cfg.MarketData.Provider,
		"storage":  cfg.Storage.Backend,
	}).Info("Starting straddle tracker")
	if cfg.IsPaperTrading() {
		logger.Info("PAPER MODE - prices may be synthetic")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close storage")
		}
	}()

	cleanupDay, cleanupAt := cfg.GetCleanupSchedule()
	sched := NewScheduler(a.Calendar, a.Calculator, a.Store, ScheduleConfig{
		CalculationTime: cfg.GetCalculationClock(),
		CleanupDay:      cleanupDay,
		CleanupTime:     cleanupAt,
		KeepDays:        cfg.Schedule.KeepDays,
	}, logger)

	errCh := make(chan error, 1)
	var srv *api.Server
	if cfg.API.Enabled {
		srv = api.NewServer(api.Config{Listen: cfg.API.Listen}, a.Calculator, a.Engine, a.Backfill, logger)
		go func() {
			if err := srv.Start(); err != nil {
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
	}

	schedCtx, cancelSched := context.WithCancel(ctx)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Run(schedCtx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping...")
	case err = <-errCh:
	}

	cancelSched()
	<-schedDone

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.WithError(serr).Warn("API shutdown incomplete")
		}
	}
	return err
}
