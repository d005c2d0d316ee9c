package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierSource reads one-minute time and sales from Tradier.
type TradierSource struct {
	client  *http.Client
	logger  logrus.FieldLogger
	loc     *time.Location
	apiKey  string
	baseURL string
	sandbox bool
}

// NewTradierSource creates a TradierSource against the production or sandbox API.
func NewTradierSource(apiKey string, sandbox bool) *TradierSource {
	return NewTradierSourceWithBaseURLAndClient(apiKey, sandbox, "", nil)
}

// NewTradierSourceWithBaseURLAndClient creates a TradierSource with optional
// custom baseURL and client.
func NewTradierSourceWithBaseURLAndClient(apiKey string, sandbox bool, baseURL string, client *http.Client) *TradierSource {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &TradierSource{
		client:  client,
		logger:  logrus.StandardLogger(),
		loc:     calendar.LoadLocation(calendar.DefaultTimezone),
		apiKey:  apiKey,
		baseURL: baseURL,
		sandbox: sandbox,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierSource) WithHTTPClient(c *http.Client) *TradierSource {
	if c != nil {
		t.client = c
	}
	return t
}

// WithTimeout sets the HTTP client timeout duration.
func (t *TradierSource) WithTimeout(timeout time.Duration) *TradierSource {
	if t.client != nil && timeout > 0 {
		t.client.Timeout = timeout
	}
	return t
}

// WithLogger sets the logger used for rate limit diagnostics.
func (t *TradierSource) WithLogger(l logrus.FieldLogger) *TradierSource {
	if l != nil {
		t.logger = l
	}
	return t
}

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// TimeSalesResponse represents the /markets/timesales payload.
type TimeSalesResponse struct {
	Series *struct {
		Data singleOrArray[TimeSalesPoint] `json:"data"`
	} `json:"series"`
}

// TimeSalesPoint is one interval of time and sales.
type TimeSalesPoint struct {
	Time      string  `json:"time"`
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	VWAP      float64 `json:"vwap"`
}

// GetTimeSales fetches 1min bars for symbol between start and end (exchange time).
func (t *TradierSource) GetTimeSales(ctx context.Context, symbol string, start, end time.Time) ([]TimeSalesPoint, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1min")
	params.Set("start", start.In(t.loc).Format("2006-01-02 15:04"))
	params.Set("end", end.In(t.loc).Format("2006-01-02 15:04"))
	params.Set("session_filter", "all")

	var resp TimeSalesResponse
	endpoint := t.baseURL + "/markets/timesales?" + params.Encode()
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Series == nil {
		return nil, nil
	}
	return resp.Series.Data, nil
}

// PriceAt implements PriceSource. Tradier symbols are plain OSI without a prefix.
func (t *TradierSource) PriceAt(ctx context.Context, date time.Time, clock calendar.Clock, c Contract) (float64, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), clock.Hour, clock.Minute, 0, 0, t.loc)
	symbol := c.OCCSymbol()

	points, err := t.GetTimeSales(ctx, symbol, start, start.Add(time.Minute))
	if err != nil {
		return 0, err
	}
	bars := make([]Bar, 0, len(points))
	for _, p := range points {
		ts := time.Unix(p.Timestamp, 0)
		if p.Timestamp == 0 {
			parsed, err := time.ParseInLocation("2006-01-02T15:04:05", p.Time, t.loc)
			if err != nil {
				continue
			}
			ts = parsed
		}
		bars = append(bars, Bar{Start: ts, Open: p.Open, High: p.High, Low: p.Low, Close: p.Close})
	}
	return openAt(bars, start, symbol, clock)
}

// makeRequestCtx makes an HTTP request with context support for timeout/cancellation
func (t *TradierSource) makeRequestCtx(ctx context.Context, method, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "straddle-tracker/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Warn("Failed to close response body")
		}
	}()

	remaining := resp.Header.Get("X-Ratelimit-Available")
	if remaining != "" && t.sandbox {
		t.logger.WithField("remaining", remaining).Debug("Tradier rate limit")
	}

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s (retry-after: %s)", method, endpoint, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}

var _ PriceSource = (*TradierSource)(nil)
