package marketdata

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Options selects and configures a price source.
type Options struct {
	Provider   string // polygon | tradier | synthetic
	APIKey     string
	BaseURL    string
	Sandbox    bool
	Location   *time.Location
	Resilience ResilienceConfig
	Logger     logrus.FieldLogger
}

// New builds the configured source. Remote providers are wrapped with
// timeout, retry and circuit breaker layers; the synthetic source is not.
func New(opts Options) (PriceSource, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	var src PriceSource
	switch opts.Provider {
	case "", "synthetic":
		return NewSyntheticSource(nil), nil
	case "polygon":
		src = NewPolygonSource(opts.APIKey, opts.Location)
	case "tradier":
		t := NewTradierSourceWithBaseURLAndClient(opts.APIKey, opts.Sandbox, opts.BaseURL, nil).
			WithLogger(opts.Logger)
		if opts.Location != nil {
			t.loc = opts.Location
		}
		src = t
	default:
		return nil, fmt.Errorf("unknown market data provider %q", opts.Provider)
	}
	return NewResilientSource(opts.Provider, src, opts.Resilience, opts.Logger), nil
}
