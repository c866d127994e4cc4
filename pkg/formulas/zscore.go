package formulas

// MinZScoreWindow is the minimum number of observations (current included)
// required before a rolling z-score is produced. A single observation has no
// sample standard deviation, so windows smaller than this are nil.
const MinZScoreWindow = 2

// RollingZScores calculates, for every position in the series, the z-score of
// the value against a trailing window of up to `window` observations (the
// current value plus window-1 preceding ones). The mean and sample standard
// deviation are taken over the window. Positions where the window holds fewer
// than MinZScoreWindow observations, or where the window has zero variance,
// are nil rather than Inf or NaN.
func RollingZScores(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	if window <= 0 {
		return out
	}
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		w := values[start : i+1]
		if len(w) < MinZScoreWindow {
			continue
		}
		sd := sampleStdDev(w)
		if sd == 0 || isNaN(sd) {
			continue
		}
		z := (values[i] - mean(w)) / sd
		out[i] = &z
	}
	return out
}
