package straddle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
	"github.com/eddiefleurent/straddle_tracker/internal/marketdata"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
	"github.com/eddiefleurent/straddle_tracker/internal/storage"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) PriceAt(ctx context.Context, date time.Time, clock calendar.Clock, c marketdata.Contract) (float64, error) {
	args := m.Called(ctx, date, clock, c)
	return args.Get(0).(float64), args.Error(1)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// testCalendar pins "today" to 2024-03-15 in New York.
func testCalendar() *calendar.Calendar {
	loc := calendar.LoadLocation(calendar.DefaultTimezone)
	return calendar.NewWithHolidays(calendar.DefaultHolidays(), loc).WithClock(func() time.Time {
		return time.Date(2024, 3, 15, 12, 0, 0, 0, loc)
	})
}

var (
	openClock = calendar.MarketOpen
	legClock  = calendar.Clock{Hour: 9, Minute: 31}
	march4    = date(2024, 3, 4)
	call5000  = marketdata.Option("SPXW", march4, marketdata.Call, 5000)
	put5000   = marketdata.Option("SPXW", march4, marketdata.Put, 5000)
)

func newTestCalculator(src marketdata.PriceSource, store storage.Interface) *Calculator {
	c := NewCalculator(testCalendar(), src, store, SPX, quietLogger())
	c.now = func() time.Time { return time.Date(2024, 3, 4, 14, 47, 0, 0, time.UTC) }
	return c
}

func TestCalculateAvailable(t *testing.T) {
	src := new(mockSource)
	src.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPX")).Return(5002.40, nil)
	src.On("PriceAt", mock.Anything, march4, legClock, call5000).Return(12.50, nil)
	src.On("PriceAt", mock.Anything, march4, legClock, put5000).Return(11.75, nil)
	store := storage.NewMockStorage()

	rec := newTestCalculator(src, store).Calculate(context.Background(), march4)

	require.Equal(t, models.StatusAvailable, rec.Status, rec.ErrorMessage)
	assert.InDelta(t, 5000.0, *rec.Strike, 1e-9)
	assert.InDelta(t, 5002.40, *rec.UnderlyingPriceOpen, 1e-9)
	assert.InDelta(t, 24.25, *rec.Cost, 1e-9)
	assert.Equal(t, "SPX", rec.Symbol)
	require.NotNil(t, rec.ComputedAt)
	src.AssertExpectations(t)

	stored, err := store.Get(context.Background(), march4)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.InDelta(t, 24.25, *stored.Cost, 1e-9)

	recs, err := store.Range(context.Background(), march4, march4)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestCalculateRejectsWithoutIO(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		rule string
	}{
		{"weekend", date(2024, 3, 9), "weekend"},
		{"holiday", date(2024, 1, 1), "holiday"},
		{"future", date(2024, 3, 18), "future"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := new(mockSource)
			store := storage.NewMockStorage()

			rec := newTestCalculator(src, store).Calculate(context.Background(), tt.date)

			assert.Equal(t, models.StatusError, rec.Status)
			assert.Contains(t, rec.ErrorMessage, "invalid trading day")
			assert.Contains(t, rec.ErrorMessage, tt.rule)
			assert.Nil(t, rec.Cost)
			src.AssertNotCalled(t, "PriceAt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			assert.Zero(t, store.PutCalls())
			assert.Zero(t, store.GetCalls())
		})
	}
}

func TestCalculateMissingPrices(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*mockSource)
		message string
	}{
		{
			name: "missing underlying",
			setup: func(m *mockSource) {
				m.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPX")).
					Return(0.0, marketdata.ErrPriceUnavailable)
			},
			message: "missing underlying price",
		},
		{
			name: "missing call",
			setup: func(m *mockSource) {
				m.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPX")).Return(5000.0, nil)
				m.On("PriceAt", mock.Anything, march4, legClock, call5000).Return(0.0, marketdata.ErrPriceUnavailable)
			},
			message: "missing call price for SPXW240304C05000000",
		},
		{
			name: "missing put",
			setup: func(m *mockSource) {
				m.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPX")).Return(5000.0, nil)
				m.On("PriceAt", mock.Anything, march4, legClock, call5000).Return(12.50, nil)
				m.On("PriceAt", mock.Anything, march4, legClock, put5000).Return(0.0, marketdata.ErrPriceUnavailable)
			},
			message: "missing put price for SPXW240304P05000000",
		},
		{
			name: "non-positive underlying",
			setup: func(m *mockSource) {
				m.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPX")).Return(0.0, nil)
			},
			message: "invalid underlying price",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := new(mockSource)
			tt.setup(src)
			store := storage.NewMockStorage()

			rec := newTestCalculator(src, store).Calculate(context.Background(), march4)

			assert.Equal(t, models.StatusError, rec.Status)
			assert.Contains(t, rec.ErrorMessage, tt.message)
			assert.Nil(t, rec.Cost)
			src.AssertExpectations(t)

			stored, err := store.Get(context.Background(), march4)
			require.NoError(t, err)
			require.NotNil(t, stored, "error records are persisted")
			assert.Equal(t, models.StatusError, stored.Status)

			recs, err := store.Range(context.Background(), march4, march4)
			require.NoError(t, err)
			assert.Empty(t, recs, "error records are never indexed")
		})
	}
}

func TestCalculateErrorKeepsAvailableRecord(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStorage()

	good := new(mockSource)
	good.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPX")).Return(5000.0, nil)
	good.On("PriceAt", mock.Anything, march4, legClock, call5000).Return(12.50, nil)
	good.On("PriceAt", mock.Anything, march4, legClock, put5000).Return(11.75, nil)
	require.Equal(t, models.StatusAvailable, newTestCalculator(good, store).Calculate(ctx, march4).Status)

	bad := new(mockSource)
	bad.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPX")).
		Return(0.0, errors.New("connection reset"))
	rec := newTestCalculator(bad, store).Calculate(ctx, march4)
	assert.Equal(t, models.StatusError, rec.Status)

	stored, err := store.Get(ctx, march4)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.StatusAvailable, stored.Status)
	assert.InDelta(t, 24.25, *stored.Cost, 1e-9)
}

func TestCalculateDoesNotReplaceAvailableRecord(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStorage()

	first := new(mockSource)
	first.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPX")).Return(5000.0, nil)
	first.On("PriceAt", mock.Anything, march4, legClock, call5000).Return(12.50, nil)
	first.On("PriceAt", mock.Anything, march4, legClock, put5000).Return(11.75, nil)
	require.Equal(t, models.StatusAvailable, newTestCalculator(first, store).Calculate(ctx, march4).Status)
	require.Equal(t, 1, store.PutCalls())

	repriced := new(mockSource)
	repriced.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPX")).Return(5000.0, nil)
	repriced.On("PriceAt", mock.Anything, march4, legClock, call5000).Return(20.0, nil)
	repriced.On("PriceAt", mock.Anything, march4, legClock, put5000).Return(20.0, nil)
	rec := newTestCalculator(repriced, store).Calculate(ctx, march4)

	require.Equal(t, models.StatusAvailable, rec.Status)
	assert.InDelta(t, 24.25, *rec.Cost, 1e-9, "stored record is returned")
	assert.Equal(t, 1, store.PutCalls())

	stored, err := store.Get(ctx, march4)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.InDelta(t, 24.25, *stored.Cost, 1e-9)
	assert.InDelta(t, 12.50, *stored.UpperLegPrice, 1e-9)
}

func TestCalculateStoreFailureKeepsResult(t *testing.T) {
	src := new(mockSource)
	src.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPX")).Return(5000.0, nil)
	src.On("PriceAt", mock.Anything, march4, legClock, call5000).Return(12.50, nil)
	src.On("PriceAt", mock.Anything, march4, legClock, put5000).Return(11.75, nil)
	store := storage.NewMockStorage()
	store.PutError = models.ErrStorageUnavailable

	rec := newTestCalculator(src, store).Calculate(context.Background(), march4)

	assert.Equal(t, models.StatusAvailable, rec.Status)
	assert.Equal(t, 1, store.PutCalls())
}

func TestCalculateSPYVariant(t *testing.T) {
	src := new(mockSource)
	spyLegs := calendar.Clock{Hour: 9, Minute: 32}
	call := marketdata.Option("SPY", march4, marketdata.Call, 512)
	put := marketdata.Option("SPY", march4, marketdata.Put, 512)
	src.On("PriceAt", mock.Anything, march4, openClock, marketdata.Underlying("SPY")).Return(511.62, nil)
	src.On("PriceAt", mock.Anything, march4, spyLegs, call).Return(1.10, nil)
	src.On("PriceAt", mock.Anything, march4, spyLegs, put).Return(1.20, nil)

	c := NewCalculator(testCalendar(), src, storage.NewMockStorage(), SPY, quietLogger())
	rec := c.Calculate(context.Background(), march4)

	require.Equal(t, models.StatusAvailable, rec.Status, rec.ErrorMessage)
	assert.InDelta(t, 512.0, *rec.Strike, 1e-9)
	assert.Equal(t, 2.30, *rec.Cost)
	src.AssertExpectations(t)
}

func TestCalculateWithSyntheticSource(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStorage()
	c := newTestCalculator(marketdata.NewSyntheticSource(nil), store)

	first := c.Calculate(ctx, march4)
	require.Equal(t, models.StatusAvailable, first.Status, first.ErrorMessage)
	require.NoError(t, first.Validate())

	second := c.Calculate(ctx, march4)
	assert.Equal(t, *first.Cost, *second.Cost, "synthetic prices are deterministic")
}

func TestToday(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStorage()
	c := newTestCalculator(new(mockSource), store)

	rec, err := c.Today(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	today := models.NewPendingRecord(date(2024, 3, 15), "SPX")
	today.Fail("missing underlying price", time.Now())
	require.NoError(t, store.Put(ctx, today))

	rec, err = c.Today(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusError, rec.Status)
}

func TestInstruments(t *testing.T) {
	inst, err := InstrumentByName("spy")
	require.NoError(t, err)
	assert.Equal(t, SPY, inst)
	assert.Equal(t, "spy_straddle", inst.KeyPrefix())
	assert.Equal(t, "spx_straddle", SPX.KeyPrefix())

	_, err = InstrumentByName("QQQ")
	assert.Error(t, err)

	assert.NoError(t, SPX.Validate())
	assert.Error(t, Instrument{Underlying: "QQQ", OptionRoot: "QQQ"}.Validate())
}

func TestExpectedMove(t *testing.T) {
	rec := models.NewPendingRecord(date(2024, 3, 4), "SPY")
	require.NoError(t, rec.Transition(models.StatusCalculating))
	rec.UnderlyingPriceOpen = models.Float64(500)
	rec.Strike = models.Float64(500)
	rec.UpperLegPrice = models.Float64(2.60)
	rec.LowerLegPrice = models.Float64(2.40)
	require.NoError(t, rec.Complete(5.00, time.Now()))

	m, err := NewExpectedMove(rec)
	require.NoError(t, err)
	assert.Equal(t, 5.00, m.OneSigma)
	assert.Equal(t, 10.00, m.TwoSigma)
	assert.Equal(t, 505.00, m.UpperBound)
	assert.Equal(t, 495.00, m.LowerBound)
	// 5 / (500 * sqrt(1/252)) * sqrt(252) = 2.52
	assert.InDelta(t, 252.0, m.ImpliedVolatility, 1e-6)

	_, err = NewExpectedMove(models.NewPendingRecord(date(2024, 3, 4), "SPY"))
	assert.Error(t, err)
}
