package marketdata

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
)

// TimeoutSource bounds every PriceAt call.
type TimeoutSource struct {
	source  PriceSource
	timeout time.Duration
}

// NewTimeoutSource wraps source with a per-call timeout. A non-positive timeout
// disables the bound.
func NewTimeoutSource(source PriceSource, timeout time.Duration) *TimeoutSource {
	return &TimeoutSource{source: source, timeout: timeout}
}

// PriceAt implements PriceSource.
func (t *TimeoutSource) PriceAt(ctx context.Context, date time.Time, clock calendar.Clock, c Contract) (float64, error) {
	if t.timeout <= 0 {
		return t.source.PriceAt(ctx, date, clock, c)
	}
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	price, err := t.source.PriceAt(callCtx, date, clock, c)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return 0, fmt.Errorf("price request for %s timed out after %v: %w", c, t.timeout, err)
	}
	return price, err
}

// RetryConfig controls RetrySource.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is used when no config is passed to NewRetrySource.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// RetrySource retries transient failures with jittered backoff. A missing
// bar is an answer, not a failure, and is never retried.
type RetrySource struct {
	source PriceSource
	logger logrus.FieldLogger
	config RetryConfig
}

// NewRetrySource wraps source. The optional config overrides DefaultRetryConfig.
func NewRetrySource(source PriceSource, logger logrus.FieldLogger, config ...RetryConfig) *RetrySource {
	cfg := DefaultRetryConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RetrySource{source: source, logger: logger, config: cfg}
}

// PriceAt implements PriceSource.
func (r *RetrySource) PriceAt(ctx context.Context, date time.Time, clock calendar.Clock, c Contract) (float64, error) {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("operation canceled: %w", ctx.Err())
		}

		price, err := r.source.PriceAt(ctx, date, clock, c)
		if err == nil {
			return price, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == r.config.MaxRetries {
			break
		}
		r.logger.WithFields(logrus.Fields{
			"contract": c.String(),
			"attempt":  attempt + 1,
			"backoff":  backoff,
		}).WithError(err).Warn("Transient price error, retrying")

		select {
		case <-time.After(backoff):
			backoff = r.nextBackoff(backoff)
		case <-ctx.Done():
			return 0, fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
		}
	}

	if errors.Is(lastErr, ErrPriceUnavailable) {
		return 0, lastErr
	}
	return 0, fmt.Errorf("price request for %s failed: %w", c, lastErr)
}

func (r *RetrySource) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > r.config.MaxBackoff {
		backoff = r.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err == nil {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

// isTransientError classifies errors worth retrying.
func isTransientError(err error) bool {
	if err == nil || errors.Is(err, ErrPriceUnavailable) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
		"eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips after 60% failures over at least 5 calls.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// CircuitBreakerSource stops calling a failing provider for a cool-down period.
type CircuitBreakerSource struct {
	source  PriceSource
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerSource wraps source with a named breaker.
func NewCircuitBreakerSource(name string, source PriceSource, settings CircuitBreakerSettings, logger logrus.FieldLogger) *CircuitBreakerSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gbSettings := gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		// a missing bar means the provider answered
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrPriceUnavailable)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("Circuit breaker state changed")
		},
	}
	return &CircuitBreakerSource{source: source, breaker: gobreaker.NewCircuitBreaker(gbSettings)}
}

// State exposes the breaker state for health reporting.
func (c *CircuitBreakerSource) State() gobreaker.State {
	return c.breaker.State()
}

// PriceAt implements PriceSource.
func (c *CircuitBreakerSource) PriceAt(ctx context.Context, date time.Time, clock calendar.Clock, contract Contract) (float64, error) {
	return execCircuitBreaker(c.breaker, func() (float64, error) {
		return c.source.PriceAt(ctx, date, clock, contract)
	})
}

// execCircuitBreaker is a generic helper for circuit breaker wrapped calls
func execCircuitBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// ResilienceConfig bundles the decorator settings.
type ResilienceConfig struct {
	Timeout time.Duration
	Retry   RetryConfig
	Breaker CircuitBreakerSettings
}

// NewResilientSource wraps source so that each attempt is bounded by the
// timeout, transient failures are retried, and a failing provider trips the
// breaker.
func NewResilientSource(name string, source PriceSource, cfg ResilienceConfig, logger logrus.FieldLogger) *CircuitBreakerSource {
	timed := NewTimeoutSource(source, cfg.Timeout)
	retried := NewRetrySource(timed, logger, cfg.Retry)
	return NewCircuitBreakerSource(name, retried, cfg.Breaker, logger)
}

var (
	_ PriceSource = (*TimeoutSource)(nil)
	_ PriceSource = (*RetrySource)(nil)
	_ PriceSource = (*CircuitBreakerSource)(nil)
)
