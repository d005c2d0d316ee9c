// Command backfill fills the record store for a named look-back scenario or
// an explicit date range.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/straddle_tracker/internal/app"
	"github.com/eddiefleurent/straddle_tracker/internal/backfill"
	"github.com/eddiefleurent/straddle_tracker/internal/config"
	"github.com/eddiefleurent/straddle_tracker/internal/logging"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

type options struct {
	configPath string
	scenario   string
	start      string
	end        string
	batchSize  int
	delay      time.Duration
	list       bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&o.scenario, "scenario", "", "Named range: 1week, 1month, 3months, 6months, 1year, 2years")
	fs.StringVar(&o.start, "start", "", "Start date YYYY-MM-DD (custom range)")
	fs.StringVar(&o.end, "end", "", "End date YYYY-MM-DD (custom range, default yesterday)")
	fs.IntVar(&o.batchSize, "batch-size", 0, "Dates per batch (default from config)")
	fs.DurationVar(&o.delay, "delay", -1, "Pause between batches (default from config)")
	fs.BoolVar(&o.list, "list", false, "List scenarios and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if !o.list && o.scenario == "" && o.start == "" {
		return o, errors.New("one of -scenario or -start is required")
	}
	if o.scenario != "" && o.start != "" {
		return o, errors.New("-scenario and -start are mutually exclusive")
	}
	return o, nil
}

// buildRequest resolves the options against today and the configured
// backfill defaults. Explicit flags win over scenario and config values.
func buildRequest(o options, today time.Time, cfg *config.Config) (backfill.Request, error) {
	var req backfill.Request
	var err error
	if o.scenario != "" {
		req, err = backfill.ScenarioRequest(o.scenario, today)
		if err != nil {
			return req, err
		}
	} else {
		start, err := models.ParseDate(o.start)
		if err != nil {
			return req, fmt.Errorf("invalid -start: %w", err)
		}
		var end time.Time
		if o.end != "" {
			if end, err = models.ParseDate(o.end); err != nil {
				return req, fmt.Errorf("invalid -end: %w", err)
			}
		}
		req, err = backfill.CustomRequest(start, end, today, cfg.Backfill.BatchSize, cfg.GetBackfillDelay())
		if err != nil {
			return req, err
		}
	}
	if o.batchSize > 0 {
		req.BatchSize = o.batchSize
	}
	if o.delay >= 0 {
		req.Delay = o.delay
	}
	return req, nil
}

func printScenarios(w io.Writer) {
	fmt.Fprintln(w, "Available scenarios:")
	for _, name := range backfill.ScenarioNames() {
		s := backfill.Scenarios[name]
		fmt.Fprintf(w, "  %-8s %s (%d days)\n", s.Name, s.Description, s.Days)
	}
}

func printSummary(w io.Writer, s *models.BackfillSummary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Backfill Summary ===")
	fmt.Fprintf(w, "Run:          %s\n", s.RunID)
	fmt.Fprintf(w, "Range:        %s to %s\n", s.StartDate, s.EndDate)
	fmt.Fprintf(w, "Trading days: %d (processed %d)\n", s.TotalDays, s.ProcessedDays)
	fmt.Fprintf(w, "Successful:   %d\n", s.SuccessfulDays)
	fmt.Fprintf(w, "Failed:       %d\n", s.FailedDays)
	fmt.Fprintf(w, "Skipped:      %d\n", s.SkippedDays)
	fmt.Fprintf(w, "Success rate: %.1f%%\n", s.SuccessRate)
	fmt.Fprintf(w, "Duration:     %.1fs\n", s.DurationSeconds)
	for _, r := range s.Results {
		if r.Disposition == models.DispositionFailed {
			fmt.Fprintf(w, "  %s failed: %s\n", r.Date, r.Error)
		}
	}
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if o.list {
		printScenarios(os.Stdout)
		return
	}

	// Load configuration
	cfg, err := config.Load(o.configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Environment.LogLevel, cfg.Environment.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := run(ctx, o, cfg, logger)
	if summary != nil {
		printSummary(os.Stdout, summary)
	}
	if err != nil {
		logger.WithError(err).Error("Backfill did not complete")
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, cfg *config.Config, logger *logrus.Logger) (*models.BackfillSummary, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close storage")
		}
	}()

	req, err := buildRequest(o, a.Calendar.Today(), cfg)
	if err != nil {
		return nil, err
	}
	return a.Backfill.Run(ctx, req)
}
