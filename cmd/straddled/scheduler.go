package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/straddle_tracker/internal/backfill"
	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
	"github.com/eddiefleurent/straddle_tracker/internal/storage"
)

// Scheduler runs the daily calculation on trading days and the weekly
// retention cleanup. Each job fires at most once per exchange date; a job
// whose time has already passed when the daemon starts fires on the first
// tick.
type Scheduler struct {
	calendar   *calendar.Calendar
	calc       backfill.Calculator
	store      storage.Interface
	calcAt     calendar.Clock
	cleanupDay time.Weekday
	cleanupAt  calendar.Clock
	keepDays   int
	interval   time.Duration
	logger     logrus.FieldLogger

	lastCalc    time.Time
	lastCleanup time.Time
}

// ScheduleConfig holds the job times in the exchange time zone.
type ScheduleConfig struct {
	CalculationTime calendar.Clock
	CleanupDay      time.Weekday
	CleanupTime     calendar.Clock
	KeepDays        int // 0 disables cleanup
	Interval        time.Duration
}

// NewScheduler creates a scheduler.
func NewScheduler(cal *calendar.Calendar, calc backfill.Calculator, store storage.Interface, cfg ScheduleConfig, logger logrus.FieldLogger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Scheduler{
		calendar:   cal,
		calc:       calc,
		store:      store,
		calcAt:     cfg.CalculationTime,
		cleanupDay: cfg.CleanupDay,
		cleanupAt:  cfg.CleanupTime,
		keepDays:   cfg.KeepDays,
		interval:   cfg.Interval,
		logger:     logger.WithField("component", "scheduler"),
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"calculation_time": s.calcAt.String(),
		"cleanup":          s.cleanupDay.String() + " " + s.cleanupAt.String(),
		"keep_days":        s.keepDays,
	}).Info("Scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.tick(ctx, s.calendar.Now())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx, s.calendar.Now())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	now = now.In(s.calendar.Location())
	today := models.CivilDate(now)

	if !today.Equal(s.lastCalc) && !now.Before(s.calendar.At(today, s.calcAt)) {
		s.lastCalc = today
		s.runCalculation(ctx, today)
	}

	if s.keepDays > 0 && now.Weekday() == s.cleanupDay &&
		!today.Equal(s.lastCleanup) && !now.Before(s.calendar.At(today, s.cleanupAt)) {
		s.lastCleanup = today
		s.runCleanup(ctx, today)
	}
}

func (s *Scheduler) runCalculation(ctx context.Context, today time.Time) {
	log := s.logger.WithField("date", models.FormatDate(today))
	if rule := s.calendar.Check(today); rule != calendar.RuleOK {
		log.WithField("rule", rule).Info("Not a trading day, skipping calculation")
		return
	}

	existing, err := s.store.Get(ctx, today)
	if err != nil {
		log.WithError(err).Warn("Could not check existing record")
	}
	if existing.IsAvailable() {
		log.Info("Straddle cost already available, skipping calculation")
		return
	}

	rec := s.calc.Calculate(ctx, today)
	if rec.IsAvailable() {
		log.WithField("cost", *rec.Cost).Info("Daily straddle calculation complete")
		return
	}
	log.WithField("error", rec.ErrorMessage).Error("Daily straddle calculation failed")
}

func (s *Scheduler) runCleanup(ctx context.Context, today time.Time) {
	cutoff := today.AddDate(0, 0, -s.keepDays)
	log := s.logger.WithField("cutoff", models.FormatDate(cutoff))
	removed, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("Retention cleanup failed")
		return
	}
	log.WithField("removed", removed).Info("Retention cleanup complete")
}
