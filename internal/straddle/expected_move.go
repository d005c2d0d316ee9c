package straddle

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/straddle_tracker/internal/models"
	"github.com/eddiefleurent/straddle_tracker/internal/util"
)

// tradingDaysPerYear is also the time-to-expiry denominator: a 0DTE contract
// is treated as having 1/252 of a year left regardless of time of day.
const tradingDaysPerYear = 252

// ExpectedMove is the market-implied move derived from a straddle cost.
type ExpectedMove struct {
	Date              string  `json:"date"`
	Symbol            string  `json:"symbol"`
	UnderlyingPrice   float64 `json:"underlying_price"`
	Strike            float64 `json:"strike"`
	StraddleCost      float64 `json:"straddle_cost"`
	OneSigma          float64 `json:"expected_move_1sigma"`
	TwoSigma          float64 `json:"expected_move_2sigma"`
	UpperBound        float64 `json:"upper_bound"`
	LowerBound        float64 `json:"lower_bound"`
	ImpliedVolatility float64 `json:"implied_volatility"`
}

// NewExpectedMove approximates the 1σ move as the straddle cost and
// annualizes the implied volatility.
func NewExpectedMove(rec *models.StraddleRecord) (*ExpectedMove, error) {
	if !rec.IsAvailable() {
		return nil, fmt.Errorf("no available straddle cost")
	}
	if rec.UnderlyingPriceOpen == nil || *rec.UnderlyingPriceOpen <= 0 {
		return nil, fmt.Errorf("no underlying price for %s", models.FormatDate(rec.Date))
	}
	price, cost := *rec.UnderlyingPriceOpen, *rec.Cost

	timeToExpiry := 1.0 / tradingDaysPerYear
	iv := cost / (price * math.Sqrt(timeToExpiry)) * math.Sqrt(tradingDaysPerYear)

	m := &ExpectedMove{
		Date:              models.FormatDate(rec.Date),
		Symbol:            rec.Symbol,
		UnderlyingPrice:   price,
		StraddleCost:      cost,
		OneSigma:          cost,
		TwoSigma:          util.RoundPlaces(cost*2, 2),
		UpperBound:        util.RoundPlaces(price+cost, 2),
		LowerBound:        util.RoundPlaces(price-cost, 2),
		ImpliedVolatility: util.RoundPlaces(iv*100, 2),
	}
	if rec.Strike != nil {
		m.Strike = *rec.Strike
	}
	return m, nil
}
