package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
)

type fakeBars struct {
	bars    []Bar
	err     error
	tickers []string
}

func (f *fakeBars) MinuteBars(_ context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	f.tickers = append(f.tickers, ticker)
	if f.err != nil {
		return nil, f.err
	}
	var out []Bar
	for _, b := range f.bars {
		if !b.Start.Before(from) && b.Start.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestPolygonSource_Ticker(t *testing.T) {
	p := newPolygonSource(&fakeBars{}, nil)
	expiry := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "I:SPX", p.Ticker(Underlying("SPX")))
	assert.Equal(t, "SPY", p.Ticker(Underlying("SPY")))
	assert.Equal(t, "O:SPXW240304C05000000", p.Ticker(Option("SPXW", expiry, Call, 5000)))
}

func TestPolygonSource_PriceAt(t *testing.T) {
	loc := calendar.LoadLocation(calendar.DefaultTimezone)
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	open := time.Date(2024, 3, 4, 9, 30, 0, 0, loc)

	bars := &fakeBars{bars: []Bar{
		{Start: open.Add(-time.Minute), Open: 4990},
		{Start: open, Open: 5000.10, Close: 5003},
		{Start: open.Add(time.Minute), Open: 5004},
	}}
	p := newPolygonSource(bars, loc)

	price, err := p.PriceAt(context.Background(), date, calendar.MarketOpen, Underlying("SPX"))
	require.NoError(t, err)
	assert.Equal(t, 5000.10, price, "must use the open of the bar starting at the clock")
	assert.Equal(t, []string{"I:SPX"}, bars.tickers)

	_, err = p.PriceAt(context.Background(), date, calendar.Clock{Hour: 9, Minute: 45}, Underlying("SPX"))
	assert.True(t, errors.Is(err, ErrPriceUnavailable))
}

func TestPolygonSource_Errors(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	notFound := newPolygonSource(&fakeBars{err: errors.New("polygon aggs O:X: NOT_FOUND: ticker not found")}, nil)
	_, err := notFound.PriceAt(context.Background(), date, calendar.MarketOpen, Underlying("SPX"))
	assert.True(t, errors.Is(err, ErrPriceUnavailable))

	down := newPolygonSource(&fakeBars{err: errors.New("connection reset by peer")}, nil)
	_, err = down.PriceAt(context.Background(), date, calendar.MarketOpen, Underlying("SPX"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPriceUnavailable))
	assert.True(t, isTransientError(err))
}

// rewriteTransport sends every request to a test server.
type rewriteTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return rt.base.RoundTrip(req)
}

func TestPolygonSource_RESTClient(t *testing.T) {
	loc := calendar.LoadLocation(calendar.DefaultTimezone)
	open := time.Date(2024, 3, 4, 9, 30, 0, 0, loc)

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticker":"I:SPX","status":"OK","adjusted":true,"queryCount":1,"resultsCount":1,` +
			`"request_id":"abc","results":[{"o":5000.1,"h":5004,"l":4998,"c":5003,"v":0,"t":` +
			strconv.FormatInt(open.UnixMilli(), 10) + `}]}`))
	}))
	defer server.Close()

	target, err := url.Parse(server.URL)
	require.NoError(t, err)
	client := &http.Client{Timeout: 5 * time.Second, Transport: &rewriteTransport{target: target, base: http.DefaultTransport}}
	p := NewPolygonSourceWithClient("test-key", loc, client)

	price, err := p.PriceAt(context.Background(), time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), calendar.MarketOpen, Underlying("SPX"))
	require.NoError(t, err)
	assert.Equal(t, 5000.1, price)
	assert.True(t, strings.HasPrefix(gotPath, "/v2/aggs/ticker/I:SPX/range/1/minute/"), gotPath)
}
