package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, or 0 for no values.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Median returns the middle element of the sorted values. For an even count
// it returns the lower of the two middle elements.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := sorted(xs)
	return s[(len(s)-1)/2]
}

// Percentile returns the p-th percentile (0-100) by linear interpolation
// between closest ranks: index (N-1)*p/100.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return percentileSorted(sorted(xs), p)
}

func percentileSorted(s []float64, p float64) float64 {
	if p <= 0 {
		return s[0]
	}
	if p >= 100 {
		return s[len(s)-1]
	}
	idx := float64(len(s)-1) * p / 100
	lo := int(math.Floor(idx))
	if lo+1 >= len(s) {
		return s[lo]
	}
	frac := idx - float64(lo)
	v := s[lo] + (s[lo+1]-s[lo])*frac
	// keep rounding from stepping past the neighbouring ranks
	return min(max(v, s[lo]), s[lo+1])
}

// StdDev is the population standard deviation (divides by N).
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// Slope is the ordinary least squares slope of xs against their positions
// 0..N-1. Gaps between dates are not time-weighted.
func Slope(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	yMean := Mean(xs)
	var num, den float64
	for i, y := range xs {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func sorted(xs []float64) []float64 {
	s := make([]float64, len(xs))
	copy(s, xs)
	sort.Float64s(s)
	return s
}
