// Package stats analyzes stored straddle costs over trailing calendar
// windows.
package stats

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
	"github.com/eddiefleurent/straddle_tracker/internal/storage"
	"github.com/eddiefleurent/straddle_tracker/internal/util"
)

// Config holds the classification thresholds. The trend threshold is in cost
// units per data point.
type Config struct {
	TrendThreshold  float64 `yaml:"trend_threshold"`
	LowVolatility   float64 `yaml:"low_volatility"`
	HighVolatility  float64 `yaml:"high_volatility"`
	RecentPoints    int     `yaml:"recent_points"`
	MinWindowPoints int     `yaml:"min_window_points"`
}

// DefaultConfig matches index-level straddle costs.
var DefaultConfig = Config{
	TrendThreshold:  0.1,
	LowVolatility:   10,
	HighVolatility:  20,
	RecentPoints:    7,
	MinWindowPoints: 5,
}

// WindowCatalog is the fixed set of multi-window sizes in calendar days.
// Year-to-date is added dynamically.
var WindowCatalog = []int{
	1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14,
	30, 45, 60, 90, 120, 180, 240, 360, 540, 720, 900,
}

// Engine computes statistics reports from the store.
type Engine struct {
	store    storage.Interface
	calendar *calendar.Calendar
	cfg      Config
	logger   logrus.FieldLogger
}

// NewEngine creates an engine. Zero-valued config fields fall back to
// DefaultConfig.
func NewEngine(store storage.Interface, cal *calendar.Calendar, cfg Config, logger logrus.FieldLogger) *Engine {
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = DefaultConfig.TrendThreshold
	}
	if cfg.LowVolatility <= 0 {
		cfg.LowVolatility = DefaultConfig.LowVolatility
	}
	if cfg.HighVolatility <= 0 {
		cfg.HighVolatility = DefaultConfig.HighVolatility
	}
	if cfg.RecentPoints <= 0 {
		cfg.RecentPoints = DefaultConfig.RecentPoints
	}
	if cfg.MinWindowPoints <= 0 {
		cfg.MinWindowPoints = DefaultConfig.MinWindowPoints
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{store: store, calendar: cal, cfg: cfg, logger: logger}
}

// Window returns [today-days, today] in the exchange calendar.
func (e *Engine) Window(days int) (start, end time.Time) {
	end = e.calendar.Today()
	return end.AddDate(0, 0, -days), end
}

// History returns the available records in the trailing window.
func (e *Engine) History(ctx context.Context, days int) ([]models.StraddleRecord, error) {
	start, end := e.Window(days)
	return e.store.Range(ctx, start, end)
}

// Analyze builds the report for the trailing windowDays calendar days. It
// never fails; problems are reported through the report status.
func (e *Engine) Analyze(ctx context.Context, windowDays int) models.StatisticsReport {
	now := e.calendar.Now()
	if windowDays < 1 {
		return errorReport(windowDays, fmt.Sprintf("window must be at least 1 day, got %d", windowDays), now)
	}

	start, end := e.Window(windowDays)
	recs, err := e.store.Range(ctx, start, end)
	if err != nil {
		e.logger.WithError(err).WithField("days", windowDays).Warn("Failed to load history")
		return errorReport(windowDays, err.Error(), now)
	}

	report := e.Summarize(costs(recs), windowDays, now)
	report.StartDate = models.FormatDate(start)
	report.EndDate = models.FormatDate(end)
	return report
}

// Summarize computes the report for chronologically ordered costs.
func (e *Engine) Summarize(xs []float64, periodDays int, now time.Time) models.StatisticsReport {
	if len(xs) == 0 {
		msg := fmt.Sprintf("%s: no straddle costs in the last %d days", models.ErrInsufficientHistory, periodDays)
		return errorReport(periodDays, msg, now)
	}

	s := sorted(xs)
	mean := Mean(xs)
	stdDev := StdDev(xs)
	slope := Slope(xs)

	cv := 0.0
	if mean != 0 {
		cv = stdDev / mean * 100
	}

	recentN := e.cfg.RecentPoints
	if recentN > len(xs) {
		recentN = len(xs)
	}
	recent := Mean(xs[len(xs)-recentN:])
	pctChange := 0.0
	if mean != 0 {
		pctChange = (recent - mean) / mean * 100
	}

	direction := e.trendDirection(slope)
	category := e.volatilityCategory(cv)

	return models.StatisticsReport{
		Status:     models.ReportSuccess,
		PeriodDays: periodDays,
		DataPoints: len(xs),
		DescriptiveStats: &models.DescriptiveStats{
			Mean:         round2(mean),
			Median:       round2(s[(len(s)-1)/2]),
			Min:          round2(s[0]),
			Max:          round2(s[len(s)-1]),
			StdDev:       round2(stdDev),
			Percentile25: round2(percentileSorted(s, 25)),
			Percentile75: round2(percentileSorted(s, 75)),
			Percentile90: round2(percentileSorted(s, 90)),
			Percentile95: round2(percentileSorted(s, 95)),
		},
		TrendAnalysis: &models.TrendAnalysis{
			Slope:          util.RoundPlaces(slope, 4),
			Direction:      direction,
			Interpretation: fmt.Sprintf("Straddle costs are %s over the %d-day period", direction, periodDays),
		},
		VolatilityAnalysis: &models.VolatilityAnalysis{
			CoefficientOfVariation: round2(cv),
			Category:               category,
			Interpretation:         fmt.Sprintf("Straddle cost volatility is %s (%.1f%%)", category, cv),
		},
		RecentComparison: &models.RecentComparison{
			RecentAvg:        round2(recent),
			HistoricalAvg:    round2(mean),
			Difference:       round2(recent - mean),
			PercentageChange: round2(pctChange),
		},
		GeneratedAt: now,
	}
}

func (e *Engine) trendDirection(slope float64) string {
	switch {
	case slope > e.cfg.TrendThreshold:
		return models.TrendIncreasing
	case slope < -e.cfg.TrendThreshold:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

func (e *Engine) volatilityCategory(cv float64) string {
	switch {
	case cv < e.cfg.LowVolatility:
		return models.VolatilityLow
	case cv <= e.cfg.HighVolatility:
		return models.VolatilityMedium
	default:
		return models.VolatilityHigh
	}
}

// MultiWindow analyzes every catalog window plus year-to-date against one
// snapshot of the store and keeps the windows with enough data points.
func (e *Engine) MultiWindow(ctx context.Context) models.MultiWindowReport {
	now := e.calendar.Now()
	today := e.calendar.Today()
	yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	ytdDays := int(models.DateOrdinal(today)-models.DateOrdinal(yearStart)) + 1

	windows := append([]int(nil), WindowCatalog...)
	if ytdDays >= e.cfg.MinWindowPoints && !slices.Contains(windows, ytdDays) {
		windows = append(windows, ytdDays)
		sort.Ints(windows)
	}

	out := models.MultiWindowReport{
		Status:  models.ReportSuccess,
		Windows: []models.WindowReport{},
		Summary: models.MultiWindowSummary{
			AvailableWindows: []int{},
			GeneratedAt:      now,
			YTD: models.YTDInfo{
				Days:      ytdDays,
				Year:      today.Year(),
				StartDate: models.FormatDate(yearStart),
				EndDate:   models.FormatDate(today),
			},
		},
	}

	longest := windows[len(windows)-1]
	recs, err := e.store.Range(ctx, today.AddDate(0, 0, -longest), today)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to load history for multi-window analysis")
		out.Status = models.ReportError
		out.Message = err.Error()
		return out
	}

	best := -1
	for _, days := range windows {
		start := today.AddDate(0, 0, -days)
		var xs []float64
		for _, r := range recs {
			if !r.Date.Before(start) {
				xs = append(xs, *r.Cost)
			}
		}
		report := e.Summarize(xs, days, now)
		if report.Status != models.ReportSuccess || report.DataPoints < e.cfg.MinWindowPoints {
			continue
		}
		report.StartDate = models.FormatDate(start)
		report.EndDate = models.FormatDate(today)

		w := models.WindowReport{Key: strconv.Itoa(days) + "d", Label: strconv.Itoa(days) + "d", Report: report}
		if days == ytdDays {
			w.Key = "ytd"
			w.Label = fmt.Sprintf("YTD (%dd)", days)
			w.IsYTD = true
			out.Summary.YTD.Included = true
		}
		out.Windows = append(out.Windows, w)
		out.Summary.AvailableWindows = append(out.Summary.AvailableWindows, days)
		if best < 0 || report.DataPoints > out.Windows[best].Report.DataPoints {
			best = len(out.Windows) - 1
		}
	}

	if len(out.Windows) == 0 {
		out.Status = models.ReportInsufficientData
		out.Message = fmt.Sprintf("Insufficient data for multi-window analysis (need %d+ data points)", e.cfg.MinWindowPoints)
		return out
	}

	out.Summary.RecommendedWindow = out.Windows[best].Key
	out.Summary.TotalWindows = len(out.Windows)
	out.Summary.TrendConsistency = true
	first := out.Windows[0].Report.TrendAnalysis.Direction
	for _, w := range out.Windows[1:] {
		if w.Report.TrendAnalysis.Direction != first {
			out.Summary.TrendConsistency = false
			break
		}
	}
	return out
}

func errorReport(days int, msg string, now time.Time) models.StatisticsReport {
	return models.StatisticsReport{
		Status:       models.ReportError,
		PeriodDays:   days,
		ErrorMessage: msg,
		GeneratedAt:  now,
	}
}

func costs(recs []models.StraddleRecord) []float64 {
	xs := make([]float64, 0, len(recs))
	for _, r := range recs {
		if r.Cost != nil {
			xs = append(xs, *r.Cost)
		}
	}
	return xs
}

func round2(v float64) float64 {
	return util.RoundPlaces(v, 2)
}
