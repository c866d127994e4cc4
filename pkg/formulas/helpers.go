// Package formulas provides windowed time-series calculations used by the
// analytics transformer: lagged deltas, simple moving averages and rolling
// z-scores over a series' own ordered observation sequence.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// mean calculates the arithmetic mean of a series
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// sampleStdDev calculates the sample standard deviation (n-1 denominator)
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// Round4 rounds a value to 4 decimal digits
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func isNaN(v float64) bool {
	return math.IsNaN(v)
}
