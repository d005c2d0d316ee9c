package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
)

func TestSyntheticSource_Deterministic(t *testing.T) {
	s := NewSyntheticSource(nil)
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	a, err := s.PriceAt(context.Background(), date, calendar.MarketOpen, Underlying("SPX"))
	if err != nil {
		t.Fatalf("PriceAt: %v", err)
	}
	b, _ := s.PriceAt(context.Background(), date, calendar.MarketOpen, Underlying("SPX"))
	if a != b {
		t.Errorf("expected identical prices, got %v and %v", a, b)
	}
	if a < 4000 || a > 6000 {
		t.Errorf("SPX synthetic price %v outside plausible range", a)
	}
}

func TestSyntheticSource_Options(t *testing.T) {
	s := NewSyntheticSource(map[string]float64{"SPY": 510})
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	clock := calendar.MarketOpen.Add(2 * time.Minute)

	spot, _ := s.PriceAt(context.Background(), date, clock, Underlying("SPY"))
	strike := float64(int(spot))

	call, err := s.PriceAt(context.Background(), date, clock, Option("SPY", date, Call, strike))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	put, err := s.PriceAt(context.Background(), date, clock, Option("SPY", date, Put, strike))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if call <= 0 || put <= 0 {
		t.Errorf("expected positive leg prices, got call=%v put=%v", call, put)
	}
	// a deep ITM call carries its intrinsic value
	deep, _ := s.PriceAt(context.Background(), date, clock, Option("SPY", date, Call, strike-50))
	if deep < 45 {
		t.Errorf("deep ITM call %v below intrinsic", deep)
	}
}

func TestSyntheticSource_Weekend(t *testing.T) {
	s := NewSyntheticSource(nil)
	_, err := s.PriceAt(context.Background(), time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), calendar.MarketOpen, Underlying("SPX"))
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable on a weekend, got %v", err)
	}
}
