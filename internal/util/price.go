// Package util provides common utility functions for price calculations.
package util

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=5, 5002.40 becomes 5000 and 5002.60 becomes 5005.
// Ties round away from zero.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return decimal.NewFromFloat(x).
		Div(decimal.NewFromFloat(tick)).
		Round(0).
		Mul(decimal.NewFromFloat(tick)).
		InexactFloat64()
}

// RoundPlaces rounds x to n decimal places, ties away from zero.
func RoundPlaces(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}

// SumPrices adds quoted prices in decimal arithmetic, so 12.10 + 11.20 is
// 23.30 and not 23.299999999999997.
func SumPrices(prices ...float64) float64 {
	total := decimal.Zero
	for _, p := range prices {
		total = total.Add(decimal.NewFromFloat(p))
	}
	return total.InexactFloat64()
}
