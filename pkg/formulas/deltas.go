package formulas

import "math"

// Changes calculates the lagged difference value[i] - value[i-lag] for every
// position in the series. Positions with fewer than lag prior observations
// are nil. The lag counts observations, not calendar periods: for a weekly
// series a lag of 12 means the 12th previous sample, not one calendar year.
func Changes(values []float64, lag int) []*float64 {
	out := make([]*float64, len(values))
	if lag <= 0 {
		return out
	}
	for i := lag; i < len(values); i++ {
		d := values[i] - values[i-lag]
		out[i] = &d
	}
	return out
}

// PctChanges calculates the lagged percentage change
// 100 * (value[i] - value[i-lag]) / |value[i-lag]|.
// Positions with fewer than lag prior observations, or where the lagged
// value is exactly zero, are nil rather than Inf or NaN.
func PctChanges(values []float64, lag int) []*float64 {
	out := make([]*float64, len(values))
	if lag <= 0 {
		return out
	}
	for i := lag; i < len(values); i++ {
		prev := values[i-lag]
		if prev == 0 {
			continue
		}
		pct := 100 * (values[i] - prev) / math.Abs(prev)
		out[i] = &pct
	}
	return out
}
