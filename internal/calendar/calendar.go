// Package calendar decides which civil dates are US equity trading days.
//
// Dates are civil dates: midnight UTC carrying the year, month and day of the
// exchange's local calendar (see models.CivilDate). "Today" is always taken in
// the exchange time zone so that late-evening UTC instants do not roll the
// date forward.
package calendar

import (
	"fmt"
	"time"

	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

// DefaultTimezone is the exchange time zone.
const DefaultTimezone = "America/New_York"

// MaxScanDays bounds NextTradingDay and PreviousTradingDay.
const MaxScanDays = 30

// Rule names the check a date failed.
type Rule string

const (
	RuleOK      Rule = ""
	RuleWeekend Rule = "weekend"
	RuleHoliday Rule = "holiday"
	RuleFuture  Rule = "future"
)

// Calendar answers trading-day questions against a static holiday table.
// It is safe for concurrent use once constructed.
type Calendar struct {
	loc      *time.Location
	holidays map[string]Holiday
	now      func() time.Time
}

// LoadLocation loads name, falling back to a fixed ET offset on minimal
// containers without tzdata.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// New creates a Calendar using the embedded holiday table and the exchange
// time zone.
func New() *Calendar {
	return NewWithHolidays(DefaultHolidays(), LoadLocation(DefaultTimezone))
}

// NewWithHolidays creates a Calendar with a custom holiday table and location.
func NewWithHolidays(holidays []Holiday, loc *time.Location) *Calendar {
	if loc == nil {
		loc = LoadLocation(DefaultTimezone)
	}
	c := &Calendar{
		loc:      loc,
		holidays: make(map[string]Holiday, len(holidays)),
		now:      time.Now,
	}
	for _, h := range holidays {
		c.holidays[models.FormatDate(h.Date)] = h
	}
	return c
}

// WithClock overrides the time source used to determine today.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	if now != nil {
		c.now = now
	}
	return c
}

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in the exchange time zone.
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the current civil date in the exchange time zone.
func (c *Calendar) Today() time.Time {
	return models.CivilDate(c.Now())
}

// Check returns the first rule d fails, or RuleOK.
func (c *Calendar) Check(d time.Time) Rule {
	d = models.CivilDate(d)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return RuleWeekend
	}
	if _, ok := c.holidays[models.FormatDate(d)]; ok {
		return RuleHoliday
	}
	if d.After(c.Today()) {
		return RuleFuture
	}
	return RuleOK
}

// IsValidTradingDay reports whether d is a weekday, not a holiday, and not
// after today.
func (c *Calendar) IsValidTradingDay(d time.Time) bool {
	return c.Check(d) == RuleOK
}

// Holiday returns the closure on d, if any.
func (c *Calendar) Holiday(d time.Time) (Holiday, bool) {
	h, ok := c.holidays[models.FormatDate(models.CivilDate(d))]
	return h, ok
}

// NextTradingDay returns the first valid trading day strictly after from,
// scanning at most MaxScanDays ahead.
func (c *Calendar) NextTradingDay(from time.Time) (time.Time, bool) {
	return c.scan(from, 1)
}

// PreviousTradingDay returns the last valid trading day strictly before from,
// scanning at most MaxScanDays back.
func (c *Calendar) PreviousTradingDay(from time.Time) (time.Time, bool) {
	return c.scan(from, -1)
}

func (c *Calendar) scan(from time.Time, step int) (time.Time, bool) {
	d := models.CivilDate(from)
	for i := 0; i < MaxScanDays; i++ {
		d = d.AddDate(0, 0, step)
		if c.IsValidTradingDay(d) {
			return d, true
		}
	}
	return time.Time{}, false
}

// TradingDays enumerates valid trading days in [start, end], ascending.
func (c *Calendar) TradingDays(start, end time.Time) []time.Time {
	start, end = models.CivilDate(start), models.CivilDate(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsValidTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// At returns the instant on civil date d at clock in the exchange time zone.
func (c *Calendar) At(d time.Time, clock Clock) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), clock.Hour, clock.Minute, 0, 0, c.loc)
}

// Clock is a time of day in the exchange time zone.
type Clock struct {
	Hour   int
	Minute int
}

// MarketOpen is the regular session open.
var MarketOpen = Clock{Hour: 9, Minute: 30}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Add returns the clock shifted by d, truncated to the minute.
func (k Clock) Add(d time.Duration) Clock {
	base := time.Date(2000, 1, 1, k.Hour, k.Minute, 0, 0, time.UTC).Add(d)
	return Clock{Hour: base.Hour(), Minute: base.Minute()}
}

func (k Clock) String() string {
	return fmt.Sprintf("%02d:%02d", k.Hour, k.Minute)
}
