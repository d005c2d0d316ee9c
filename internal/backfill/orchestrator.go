// Package backfill fills the record store for a historical date range in
// throttled, bounded-concurrency batches.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
	"github.com/eddiefleurent/straddle_tracker/internal/storage"
)

// Defaults used when a request leaves them unset.
const (
	DefaultBatchSize = 10
	DefaultDelay     = time.Second
)

// Calculator computes the record for one date. It reports failures through
// the record status.
type Calculator interface {
	Calculate(ctx context.Context, date time.Time) *models.StraddleRecord
}

// Request describes one run. Start and End are inclusive.
type Request struct {
	Start     time.Time
	End       time.Time
	BatchSize int
	Delay     time.Duration
}

// ProgressFunc observes progress after every batch.
type ProgressFunc func(models.BackfillProgress)

// Orchestrator runs backfills. It has no retry policy: re-running a range
// skips dates that are already available.
type Orchestrator struct {
	calc     Calculator
	store    storage.Interface
	calendar *calendar.Calendar
	logger   logrus.FieldLogger
	progress ProgressFunc
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(calc Calculator, store storage.Interface, cal *calendar.Calendar, logger logrus.FieldLogger) *Orchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		calc:     calc,
		store:    store,
		calendar: cal,
		logger:   logger,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// OnProgress registers a callback invoked after each batch.
func (o *Orchestrator) OnProgress(fn ProgressFunc) *Orchestrator {
	o.progress = fn
	return o
}

// Run processes every trading day in the request. Cancelling ctx stops new
// batches from starting; the summary then covers the dates processed so far
// and ctx's error is returned with it.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.BackfillSummary, error) {
	start, end := models.CivilDate(req.Start), models.CivilDate(req.End)
	if end.Before(start) {
		return nil, fmt.Errorf("start date %s is after end date %s", models.FormatDate(start), models.FormatDate(end))
	}
	if req.BatchSize <= 0 {
		req.BatchSize = DefaultBatchSize
	}
	if req.Delay < 0 {
		req.Delay = 0
	}

	days := o.calendar.TradingDays(start, end)
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days found between %s and %s",
			models.FormatDate(start), models.FormatDate(end))
	}

	progress := models.BackfillProgress{
		RunID:     uuid.New().String(),
		TotalDays: len(days),
		StartTime: o.now(),
	}
	log := o.logger.WithField("run_id", progress.RunID)
	batches := (len(days) + req.BatchSize - 1) / req.BatchSize
	log.WithFields(logrus.Fields{
		"start":      models.FormatDate(start),
		"end":        models.FormatDate(end),
		"total_days": len(days),
		"batches":    batches,
	}).Info("Starting backfill")

	results := make([]models.DateResult, 0, len(days))
	var runErr error
	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		lo := b * req.BatchSize
		hi := min(lo+req.BatchSize, len(days))

		batch := o.runBatch(ctx, days[lo:hi], log)
		for _, r := range batch {
			progress.Record(r.Disposition)
		}
		results = append(results, batch...)

		log.WithFields(logrus.Fields{
			"batch":      b + 1,
			"processed":  progress.Processed,
			"total":      progress.TotalDays,
			"successful": progress.Successful,
			"failed":     progress.Failed,
			"skipped":    progress.Skipped,
		}).Infof("Progress: %.1f%%", progress.CompletionPercentage())
		if o.progress != nil {
			o.progress(progress)
		}

		if b < batches-1 && req.Delay > 0 {
			if err := o.sleep(ctx, req.Delay); err != nil {
				runErr = err
				break
			}
		}
	}

	summary := &models.BackfillSummary{
		RunID:           progress.RunID,
		TotalDays:       progress.TotalDays,
		ProcessedDays:   progress.Processed,
		SuccessfulDays:  progress.Successful,
		FailedDays:      progress.Failed,
		SkippedDays:     progress.Skipped,
		SuccessRate:     progress.SuccessRate(),
		DurationSeconds: o.now().Sub(progress.StartTime).Seconds(),
		StartDate:       models.FormatDate(start),
		EndDate:         models.FormatDate(end),
		Results:         results,
	}
	log.WithFields(logrus.Fields{
		"successful": summary.SuccessfulDays,
		"failed":     summary.FailedDays,
		"skipped":    summary.SkippedDays,
	}).Infof("Backfill finished, success rate %.1f%%", summary.SuccessRate)
	return summary, runErr
}

// runBatch processes the dates concurrently and returns their results in
// input order.
func (o *Orchestrator) runBatch(ctx context.Context, dates []time.Time, log logrus.FieldLogger) []models.DateResult {
	out := make([]models.DateResult, len(dates))
	var g errgroup.Group
	g.SetLimit(len(dates))
	for i, d := range dates {
		g.Go(func() error {
			out[i] = o.processDate(ctx, d, log)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// processDate never fails: panics and store errors are recorded against the
// date.
func (o *Orchestrator) processDate(ctx context.Context, date time.Time, log logrus.FieldLogger) (res models.DateResult) {
	res.Date = models.FormatDate(date)
	log = log.WithField("date", res.Date)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Calculation panicked")
			res = models.DateResult{
				Date:        models.FormatDate(date),
				Disposition: models.DispositionFailed,
				Error:       fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	existing, err := o.store.Get(ctx, date)
	if err != nil {
		log.WithError(err).Warn("Could not check existing record, calculating anyway")
	}
	if existing.IsAvailable() {
		res.Disposition = models.DispositionSkipped
		res.Cost = existing.Cost
		return res
	}

	rec := o.calc.Calculate(ctx, date)
	switch {
	case rec == nil:
		res.Disposition = models.DispositionFailed
		res.Error = "calculator returned no record"
	case rec.IsAvailable():
		res.Disposition = models.DispositionSuccessful
		res.Cost = rec.Cost
	default:
		res.Disposition = models.DispositionFailed
		res.Error = rec.ErrorMessage
		log.WithField("error", rec.ErrorMessage).Debug("Date failed")
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
