// Package straddle prices the at-the-money zero-days-to-expiry straddle for a
// trading day and persists the result.
package straddle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
	"github.com/eddiefleurent/straddle_tracker/internal/marketdata"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
	"github.com/eddiefleurent/straddle_tracker/internal/storage"
	"github.com/eddiefleurent/straddle_tracker/internal/util"
)

// Calculator computes straddle records. Calculate never returns an error:
// every failure ends up as an error-status record.
type Calculator struct {
	calendar   *calendar.Calendar
	source     marketdata.PriceSource
	store      storage.Interface
	instrument Instrument
	openTime   calendar.Clock
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewCalculator creates a calculator for one instrument.
func NewCalculator(cal *calendar.Calendar, source marketdata.PriceSource, store storage.Interface, instrument Instrument, logger logrus.FieldLogger) *Calculator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Calculator{
		calendar:   cal,
		source:     source,
		store:      store,
		instrument: instrument,
		openTime:   calendar.MarketOpen,
		logger:     logger.WithField("symbol", instrument.Name),
		now:        time.Now,
	}
}

// WithOpenTime overrides the underlying sampling time (default 09:30).
func (c *Calculator) WithOpenTime(clock calendar.Clock) *Calculator {
	c.openTime = clock
	return c
}

// Instrument returns the series this calculator prices.
func (c *Calculator) Instrument() Instrument {
	return c.instrument
}

// Calendar returns the market calendar in use.
func (c *Calculator) Calendar() *calendar.Calendar {
	return c.calendar
}

// Store returns the record store in use.
func (c *Calculator) Store() storage.Interface {
	return c.store
}

// Calculate prices the straddle for date. Calendar rejections return
// immediately without touching the price source or the store.
func (c *Calculator) Calculate(ctx context.Context, date time.Time) *models.StraddleRecord {
	date = models.CivilDate(date)
	rec := models.NewPendingRecord(date, c.instrument.Name)
	log := c.logger.WithField("date", models.FormatDate(date))

	if rule := c.calendar.Check(date); rule != calendar.RuleOK {
		err := fmt.Errorf("%w %s: %s", models.ErrInvalidTradingDay, models.FormatDate(date), rule)
		log.WithField("rule", rule).Debug("Rejected date")
		rec.Fail(err.Error(), c.now())
		return rec
	}

	if err := rec.Transition(models.StatusCalculating); err != nil {
		rec.Fail(err.Error(), c.now())
		return rec
	}

	if err := c.price(ctx, date, rec); err != nil {
		log.WithError(err).Warn("Straddle calculation failed")
		rec.Fail(err.Error(), c.now())
		c.persistFailure(ctx, rec, log)
		return rec
	}

	log.WithFields(logrus.Fields{
		"strike": *rec.Strike,
		"call":   *rec.UpperLegPrice,
		"put":    *rec.LowerLegPrice,
		"cost":   *rec.Cost,
	}).Info("Straddle cost calculated")

	return c.persistResult(ctx, rec, log)
}

// price runs the strictly ordered steps: underlying, strike, call, put, cost.
func (c *Calculator) price(ctx context.Context, date time.Time, rec *models.StraddleRecord) error {
	underlying, err := c.source.PriceAt(ctx, date, c.openTime, marketdata.Underlying(c.instrument.Underlying))
	if err != nil {
		return missing("missing underlying price", err)
	}
	rec.UnderlyingPriceOpen = models.Float64(underlying)
	if underlying <= 0 {
		return fmt.Errorf("invalid underlying price %.2f", underlying)
	}

	strike := util.RoundToTick(underlying, c.instrument.StrikeIncrement)
	rec.Strike = models.Float64(strike)

	legClock := c.openTime.Add(c.instrument.OptionOffset)
	call := marketdata.Option(c.instrument.OptionRoot, date, marketdata.Call, strike)
	callPrice, err := c.source.PriceAt(ctx, date, legClock, call)
	if err != nil {
		return missing("missing call price for "+call.OCCSymbol(), err)
	}
	rec.UpperLegPrice = models.Float64(callPrice)

	put := marketdata.Option(c.instrument.OptionRoot, date, marketdata.Put, strike)
	putPrice, err := c.source.PriceAt(ctx, date, legClock, put)
	if err != nil {
		return missing("missing put price for "+put.OCCSymbol(), err)
	}
	rec.LowerLegPrice = models.Float64(putPrice)

	return rec.Complete(util.SumPrices(callPrice, putPrice), c.now())
}

// missing keeps a price source outage distinguishable from other failures.
func missing(msg string, err error) error {
	if errors.Is(err, marketdata.ErrPriceUnavailable) {
		return fmt.Errorf("%s: %w", msg, models.ErrMissingPriceData)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// persistResult stores a computed record. An available record is never
// replaced; the stored one is returned instead.
func (c *Calculator) persistResult(ctx context.Context, rec *models.StraddleRecord, log logrus.FieldLogger) *models.StraddleRecord {
	existing, err := c.store.Get(ctx, rec.Date)
	if err != nil {
		log.WithError(err).Warn("Could not check existing record")
	}
	if existing.IsAvailable() {
		log.WithField("cost", *existing.Cost).Info("Keeping existing available record")
		return existing
	}
	if err := c.store.Put(ctx, rec); err != nil {
		log.WithError(err).Warn("Failed to persist straddle record")
	}
	return rec
}

// persistFailure writes an error record unless the date already has an
// available one.
func (c *Calculator) persistFailure(ctx context.Context, rec *models.StraddleRecord, log logrus.FieldLogger) {
	existing, err := c.store.Get(ctx, rec.Date)
	if err != nil {
		log.WithError(err).Warn("Could not check existing record")
	}
	if existing.IsAvailable() {
		log.Info("Keeping existing available record")
		return
	}
	if err := c.store.Put(ctx, rec); err != nil {
		log.WithError(err).Warn("Failed to persist error record")
	}
}

// Today returns the stored record for the current exchange date, or nil when
// nothing has been computed yet.
func (c *Calculator) Today(ctx context.Context) (*models.StraddleRecord, error) {
	return c.store.Get(ctx, c.calendar.Today())
}
