package marketdata

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

// SyntheticSource generates plausible prices without a provider, for paper
// mode and local development. Prices are a pure function of date, clock and
// contract so that recomputing a day yields the same record.
type SyntheticSource struct {
	basePrices map[string]float64
	annualVol  float64
}

// NewSyntheticSource creates a generator. basePrices maps underlying symbol to
// a reference level; unknown symbols default to 100.
func NewSyntheticSource(basePrices map[string]float64) *SyntheticSource {
	bp := map[string]float64{"SPX": 5000, "SPY": 500}
	for k, v := range basePrices {
		bp[k] = v
	}
	return &SyntheticSource{basePrices: bp, annualVol: 0.16}
}

// noise returns a deterministic value in [0,1) for the given parts.
func noise(parts ...string) float64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return float64(h.Sum64()>>11) / (1 << 53)
}

// underlyingAt is a slow drift plus day-level and minute-level jitter.
func (s *SyntheticSource) underlyingAt(symbol string, date time.Time, clock calendar.Clock) float64 {
	base, ok := s.basePrices[symbol]
	if !ok {
		base = 100
	}
	day := models.FormatDate(date)
	ord := float64(models.DateOrdinal(date))
	drift := 1 + 0.08*math.Sin(ord/90)
	daily := (noise(symbol, day) - 0.5) * 0.02
	minute := (noise(symbol, day, clock.String()) - 0.5) * 0.001
	return base * drift * (1 + daily + minute)
}

// PriceAt implements PriceSource.
func (s *SyntheticSource) PriceAt(_ context.Context, date time.Time, clock calendar.Clock, c Contract) (float64, error) {
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return 0, fmt.Errorf("%s on %s: %w", c, models.FormatDate(date), ErrPriceUnavailable)
	}
	if !c.IsOption() {
		return round2(s.underlyingAt(c.Symbol, date, clock)), nil
	}

	symbol := underlyingForRoot(c.Root)
	spot := s.underlyingAt(symbol, date, clock)

	// Same-day ATM value is roughly 0.4 * spot * vol * sqrt(1/252) per leg,
	// with the day's vol scaled by a per-day factor.
	volFactor := 0.7 + 0.6*noise("vol", symbol, models.FormatDate(date))
	timeValue := 0.4 * spot * s.annualVol * volFactor * math.Sqrt(1.0/252)
	distance := math.Abs(spot - c.Strike)
	extrinsic := timeValue * math.Exp(-distance/math.Max(timeValue*2, 0.01))

	intrinsic := 0.0
	switch c.Right {
	case Call:
		intrinsic = math.Max(0, spot-c.Strike)
	case Put:
		intrinsic = math.Max(0, c.Strike-spot)
	}
	return math.Max(0.05, round2(intrinsic+extrinsic)), nil
}

// underlyingForRoot maps weekly/PM-settled roots to their underlying.
func underlyingForRoot(root string) string {
	switch root {
	case "SPXW", "SPXPM":
		return "SPX"
	case "NDXP":
		return "NDX"
	}
	return root
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var _ PriceSource = (*SyntheticSource)(nil)
