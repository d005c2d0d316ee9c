package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
	"github.com/eddiefleurent/straddle_tracker/internal/storage"
)

var today = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func testCalendar(now time.Time) *calendar.Calendar {
	loc := calendar.LoadLocation(calendar.DefaultTimezone)
	return calendar.NewWithHolidays(calendar.DefaultHolidays(), loc).WithClock(func() time.Time {
		return time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, loc)
	})
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// seed writes one available record per cost, ending on end and walking
// backwards one calendar day at a time.
func seed(t *testing.T, store storage.Interface, end time.Time, costs ...float64) {
	t.Helper()
	for i, c := range costs {
		d := end.AddDate(0, 0, -(len(costs) - 1 - i))
		rec := models.NewPendingRecord(d, "SPX")
		require.NoError(t, rec.Transition(models.StatusCalculating))
		rec.UnderlyingPriceOpen = models.Float64(5000)
		rec.Strike = models.Float64(5000)
		rec.UpperLegPrice = models.Float64(c / 2)
		rec.LowerLegPrice = models.Float64(c / 2)
		require.NoError(t, rec.Complete(c, time.Now()))
		require.NoError(t, store.Put(context.Background(), rec))
	}
}

func TestAnalyzeScenario(t *testing.T) {
	store := storage.NewMockStorage()
	seed(t, store, today, 20, 22, 21, 25, 24, 23, 26, 28, 27, 30)
	e := NewEngine(store, testCalendar(today), Config{}, quietLogger())

	r := e.Analyze(context.Background(), 30)

	require.Equal(t, models.ReportSuccess, r.Status, r.ErrorMessage)
	assert.Equal(t, 30, r.PeriodDays)
	assert.Equal(t, 10, r.DataPoints)
	assert.Equal(t, "2024-02-14", r.StartDate)
	assert.Equal(t, "2024-03-15", r.EndDate)

	d := r.DescriptiveStats
	require.NotNil(t, d)
	assert.Equal(t, 24.6, d.Mean)
	assert.Equal(t, 24.0, d.Median)
	assert.Equal(t, 20.0, d.Min)
	assert.Equal(t, 30.0, d.Max)
	assert.Equal(t, 3.04, d.StdDev)
	assert.Equal(t, 22.25, d.Percentile25)
	assert.Equal(t, 26.75, d.Percentile75)
	assert.Equal(t, 28.2, d.Percentile90)
	assert.Equal(t, 29.1, d.Percentile95)

	assert.Equal(t, 0.9818, r.TrendAnalysis.Slope)
	assert.Equal(t, models.TrendIncreasing, r.TrendAnalysis.Direction)
	assert.Equal(t, "Straddle costs are increasing over the 30-day period", r.TrendAnalysis.Interpretation)

	assert.Equal(t, 12.36, r.VolatilityAnalysis.CoefficientOfVariation)
	assert.Equal(t, models.VolatilityMedium, r.VolatilityAnalysis.Category)
	assert.Equal(t, "Straddle cost volatility is medium (12.4%)", r.VolatilityAnalysis.Interpretation)

	assert.Equal(t, 26.14, r.RecentComparison.RecentAvg)
	assert.Equal(t, 24.6, r.RecentComparison.HistoricalAvg)
	assert.Equal(t, 1.54, r.RecentComparison.Difference)
	assert.Equal(t, 6.27, r.RecentComparison.PercentageChange)
}

func TestAnalyzeWindowIsCalendarDays(t *testing.T) {
	store := storage.NewMockStorage()
	seed(t, store, today, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19)
	e := NewEngine(store, testCalendar(today), Config{}, quietLogger())

	// [today-3, today] covers four calendar days.
	r := e.Analyze(context.Background(), 3)
	require.Equal(t, models.ReportSuccess, r.Status)
	assert.Equal(t, 4, r.DataPoints)
	assert.Equal(t, 17.5, r.DescriptiveStats.Mean)
}

func TestAnalyzeEmptyWindow(t *testing.T) {
	e := NewEngine(storage.NewMockStorage(), testCalendar(today), Config{}, quietLogger())

	r := e.Analyze(context.Background(), 30)

	assert.Equal(t, models.ReportError, r.Status)
	assert.Contains(t, r.ErrorMessage, "insufficient history")
	assert.Zero(t, r.DataPoints)
	assert.Nil(t, r.DescriptiveStats)
}

func TestAnalyzeInvalidWindow(t *testing.T) {
	e := NewEngine(storage.NewMockStorage(), testCalendar(today), Config{}, quietLogger())
	r := e.Analyze(context.Background(), 0)
	assert.Equal(t, models.ReportError, r.Status)
}

func TestAnalyzeStorageUnavailable(t *testing.T) {
	store := storage.NewMockStorage()
	store.RangeErr = errors.New("dial tcp: connection refused")
	e := NewEngine(store, testCalendar(today), Config{}, quietLogger())

	r := e.Analyze(context.Background(), 30)

	assert.Equal(t, models.ReportError, r.Status)
	assert.Contains(t, r.ErrorMessage, "connection refused")
}

func TestSummarizeClassification(t *testing.T) {
	e := NewEngine(nil, testCalendar(today), Config{}, quietLogger())
	now := time.Now()

	tests := []struct {
		name       string
		costs      []float64
		direction  string
		volatility string
	}{
		{"flat", []float64{10, 10, 10, 10}, models.TrendStable, models.VolatilityLow},
		{"falling", []float64{30, 25, 20, 15, 10}, models.TrendDecreasing, models.VolatilityHigh},
		{"small drift", []float64{20, 20.05, 20.1, 20.15}, models.TrendStable, models.VolatilityLow},
		{"single point", []float64{24.25}, models.TrendStable, models.VolatilityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.Summarize(tt.costs, 30, now)
			require.Equal(t, models.ReportSuccess, r.Status)
			assert.Equal(t, tt.direction, r.TrendAnalysis.Direction)
			assert.Equal(t, tt.volatility, r.VolatilityAnalysis.Category)
		})
	}
}

func TestSummarizeZeroMean(t *testing.T) {
	e := NewEngine(nil, testCalendar(today), Config{}, quietLogger())
	r := e.Summarize([]float64{0, 0, 0}, 7, time.Now())
	require.Equal(t, models.ReportSuccess, r.Status)
	assert.Zero(t, r.VolatilityAnalysis.CoefficientOfVariation)
	assert.Zero(t, r.RecentComparison.PercentageChange)
}

func TestSummarizeCustomThreshold(t *testing.T) {
	e := NewEngine(nil, testCalendar(today), Config{TrendThreshold: 0.01}, quietLogger())
	r := e.Summarize([]float64{20, 20.05, 20.1, 20.15}, 30, time.Now())
	assert.Equal(t, models.TrendIncreasing, r.TrendAnalysis.Direction)
}

func TestMultiWindow(t *testing.T) {
	store := storage.NewMockStorage()
	// 20 consecutive days of rising costs ending today.
	costs := make([]float64, 20)
	for i := range costs {
		costs[i] = 20 + float64(i)
	}
	seed(t, store, today, costs...)
	e := NewEngine(store, testCalendar(today), Config{}, quietLogger())

	r := e.MultiWindow(context.Background())

	require.Equal(t, models.ReportSuccess, r.Status, r.Message)
	// Windows 1..3 hold fewer than 5 points and are dropped.
	assert.Equal(t, 4, r.Summary.AvailableWindows[0])
	assert.Equal(t, "4d", r.Windows[0].Key)
	assert.Equal(t, 5, r.Windows[0].Report.DataPoints)

	// 2024-03-15 is day 75 of a leap year.
	assert.Equal(t, 75, r.Summary.YTD.Days)
	assert.Equal(t, 2024, r.Summary.YTD.Year)
	assert.Equal(t, "2024-01-01", r.Summary.YTD.StartDate)
	assert.True(t, r.Summary.YTD.Included)

	var ytd *models.WindowReport
	for i := range r.Windows {
		if r.Windows[i].IsYTD {
			ytd = &r.Windows[i]
		}
	}
	require.NotNil(t, ytd)
	assert.Equal(t, "ytd", ytd.Key)
	assert.Equal(t, "YTD (75d)", ytd.Label)
	assert.Equal(t, 20, ytd.Report.DataPoints)

	// Every window from 30 days up holds all 20 points; the first wins.
	assert.Equal(t, "30d", r.Summary.RecommendedWindow)
	assert.Equal(t, len(r.Windows), r.Summary.TotalWindows)
	assert.True(t, r.Summary.TrendConsistency)
}

func TestMultiWindowInconsistentTrend(t *testing.T) {
	store := storage.NewMockStorage()
	// Long decline, then a short sharp rise.
	seed(t, store, today, 40, 38, 36, 34, 32, 30, 28, 26, 24, 22, 20, 21, 23, 26, 30)
	e := NewEngine(store, testCalendar(today), Config{}, quietLogger())

	r := e.MultiWindow(context.Background())

	require.Equal(t, models.ReportSuccess, r.Status)
	assert.False(t, r.Summary.TrendConsistency)
}

func TestMultiWindowInsufficientData(t *testing.T) {
	store := storage.NewMockStorage()
	seed(t, store, today, 20, 21, 22)
	e := NewEngine(store, testCalendar(today), Config{}, quietLogger())

	r := e.MultiWindow(context.Background())

	assert.Equal(t, models.ReportInsufficientData, r.Status)
	assert.Empty(t, r.Windows)
	assert.Contains(t, r.Message, "5+ data points")
}

func TestMultiWindowYTDSkippedEarlyInYear(t *testing.T) {
	jan3 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	e := NewEngine(storage.NewMockStorage(), testCalendar(jan3), Config{}, quietLogger())

	r := e.MultiWindow(context.Background())

	assert.Equal(t, 3, r.Summary.YTD.Days)
	assert.False(t, r.Summary.YTD.Included)
}
