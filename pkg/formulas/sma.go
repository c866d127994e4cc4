package formulas

import (
	"github.com/markcheno/go-talib"
)

// MovingAverages calculates a simple moving average of the given window at
// every position in the series, rounded to 4 decimal digits. Positions with
// fewer than window observations (the warmup period) are nil.
func MovingAverages(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	if window <= 0 || len(values) < window {
		return out
	}

	sma := talib.Sma(values, window)
	for i := window - 1; i < len(sma); i++ {
		if isNaN(sma[i]) {
			continue
		}
		v := Round4(sma[i])
		out[i] = &v
	}
	return out
}
