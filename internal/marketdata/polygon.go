package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	polygonrest "github.com/polygon-io/client-go/rest"
	rmodels "github.com/polygon-io/client-go/rest/models"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
)

// Bar is a one-minute OHLC bar.
type Bar struct {
	Start time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// barLister fetches minute bars for a ticker in [from, to).
type barLister interface {
	MinuteBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error)
}

// polygonBars adapts the Polygon REST client to barLister.
type polygonBars struct {
	rest *polygonrest.Client
}

func (p *polygonBars) MinuteBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	params := &rmodels.ListAggsParams{
		Ticker:     ticker,
		Timespan:   rmodels.Minute,
		Multiplier: 1,
		From:       rmodels.Millis(from),
		To:         rmodels.Millis(to),
	}
	lim := 5
	asc := rmodels.Asc
	adj := true
	params.Limit = &lim
	params.Order = &asc
	params.Adjusted = &adj

	iter := p.rest.ListAggs(ctx, params)
	var bars []Bar
	for iter.Next() {
		a := iter.Item()
		bars = append(bars, Bar{
			Start: time.Time(a.Timestamp),
			Open:  a.Open,
			High:  a.High,
			Low:   a.Low,
			Close: a.Close,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("polygon aggs %s: %w", ticker, err)
	}
	return bars, nil
}

// PolygonSource reads minute aggregates from Polygon.
type PolygonSource struct {
	bars         barLister
	loc          *time.Location
	indexSymbols map[string]bool
}

// DefaultIndexSymbols are underlyings Polygon serves under the "I:" prefix.
var DefaultIndexSymbols = []string{"SPX", "NDX", "RUT", "VIX", "XSP"}

// NewPolygonSource creates a PolygonSource with a 10 second HTTP timeout.
func NewPolygonSource(apiKey string, loc *time.Location) *PolygonSource {
	return NewPolygonSourceWithClient(apiKey, loc, &http.Client{Timeout: 10 * time.Second})
}

// NewPolygonSourceWithClient creates a PolygonSource with a custom HTTP client.
func NewPolygonSourceWithClient(apiKey string, loc *time.Location, client *http.Client) *PolygonSource {
	return newPolygonSource(&polygonBars{rest: polygonrest.NewWithClient(apiKey, client)}, loc)
}

func newPolygonSource(bars barLister, loc *time.Location) *PolygonSource {
	if loc == nil {
		loc = calendar.LoadLocation(calendar.DefaultTimezone)
	}
	idx := make(map[string]bool, len(DefaultIndexSymbols))
	for _, s := range DefaultIndexSymbols {
		idx[s] = true
	}
	return &PolygonSource{bars: bars, loc: loc, indexSymbols: idx}
}

// Ticker maps a contract to Polygon's ticker namespace.
func (p *PolygonSource) Ticker(c Contract) string {
	if c.IsOption() {
		return "O:" + c.OCCSymbol()
	}
	if p.indexSymbols[c.Symbol] {
		return "I:" + c.Symbol
	}
	return c.Symbol
}

// PriceAt implements PriceSource.
func (p *PolygonSource) PriceAt(ctx context.Context, date time.Time, clock calendar.Clock, c Contract) (float64, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), clock.Hour, clock.Minute, 0, 0, p.loc)
	ticker := p.Ticker(c)

	bars, err := p.bars.MinuteBars(ctx, ticker, start, start.Add(time.Minute))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return 0, fmt.Errorf("%s at %s: %w", ticker, clock, ErrPriceUnavailable)
		}
		return 0, err
	}
	return openAt(bars, start, ticker, clock)
}

// openAt returns the open of the bar starting exactly at start.
func openAt(bars []Bar, start time.Time, ticker string, clock calendar.Clock) (float64, error) {
	for _, b := range bars {
		if b.Start.Equal(start) && b.Open > 0 {
			return b.Open, nil
		}
	}
	return 0, fmt.Errorf("%s at %s: %w", ticker, clock, ErrPriceUnavailable)
}

var _ PriceSource = (*PolygonSource)(nil)
