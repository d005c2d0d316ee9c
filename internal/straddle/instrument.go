package straddle

import (
	"fmt"
	"strings"
	"time"
)

// Instrument describes one straddle series: what to price for the
// underlying open, which option root to quote, how strikes are spaced and how
// long after the open the legs are sampled.
type Instrument struct {
	Name            string        `yaml:"name"`
	Underlying      string        `yaml:"underlying"`
	OptionRoot      string        `yaml:"option_root"`
	StrikeIncrement float64       `yaml:"strike_increment"`
	OptionOffset    time.Duration `yaml:"option_offset"`
}

// Built-in series. The leg offsets must not change between runs or
// historical costs stop being comparable.
var (
	SPX = Instrument{
		Name:            "SPX",
		Underlying:      "SPX",
		OptionRoot:      "SPXW",
		StrikeIncrement: 5,
		OptionOffset:    time.Minute,
	}
	SPY = Instrument{
		Name:            "SPY",
		Underlying:      "SPY",
		OptionRoot:      "SPY",
		StrikeIncrement: 1,
		OptionOffset:    2 * time.Minute,
	}
)

// InstrumentByName returns a built-in instrument.
func InstrumentByName(name string) (Instrument, error) {
	switch strings.ToUpper(name) {
	case "SPX":
		return SPX, nil
	case "SPY":
		return SPY, nil
	default:
		return Instrument{}, fmt.Errorf("unknown instrument %q", name)
	}
}

// Validate checks a custom instrument.
func (i Instrument) Validate() error {
	if i.Underlying == "" {
		return fmt.Errorf("underlying is required")
	}
	if i.OptionRoot == "" {
		return fmt.Errorf("option_root is required")
	}
	if i.StrikeIncrement <= 0 {
		return fmt.Errorf("strike_increment must be positive, got %v", i.StrikeIncrement)
	}
	if i.OptionOffset < 0 {
		return fmt.Errorf("option_offset must not be negative")
	}
	return nil
}

// KeyPrefix is the storage namespace for the series, e.g. spx_straddle.
func (i Instrument) KeyPrefix() string {
	name := i.Name
	if name == "" {
		name = i.Underlying
	}
	return strings.ToLower(name) + "_straddle"
}
