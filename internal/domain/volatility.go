package domain

import "math"

const tradingDaysPerYear = 252

// HistoricalVolatility returns the annualized standard deviation of daily log
// returns over the last `window` returns of closes. ok is false when there is
// not enough history.
func HistoricalVolatility(closes []float64, window int) (vol float64, ok bool) {
	if window < 2 || len(closes) < window+1 {
		return 0, false
	}
	tail := closes[len(closes)-window-1:]
	rets := make([]float64, 0, window)
	for i := 1; i < len(tail); i++ {
		if tail[i-1] <= 0 || tail[i] <= 0 {
			return 0, false
		}
		rets = append(rets, math.Log(tail[i]/tail[i-1]))
	}

	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	ss := 0.0
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss/float64(len(rets)-1)) * math.Sqrt(tradingDaysPerYear), true
}

// VolModel decides which volatility the pricer sees on a given day.
// A positive Fixed value wins; otherwise HV over Window closes, never below Floor.
type VolModel struct {
	Fixed  float64
	Window int
	Floor  float64
}

// At returns the volatility for the latest close in history.
func (v VolModel) At(closes []float64) float64 {
	if v.Fixed > 0 {
		return v.Fixed
	}
	hv, ok := HistoricalVolatility(closes, v.Window)
	if !ok || hv < v.Floor {
		return v.Floor
	}
	return hv
}

// Validate checks that the model can always produce a positive volatility.
func (v VolModel) Validate() error {
	if v.Fixed < 0 {
		return InvalidConfigf("volatility must be >= 0")
	}
	if v.Fixed == 0 {
		if v.Window < 2 {
			return InvalidConfigf("hv window must be >= 2 when no fixed volatility is set")
		}
		if v.Floor <= 0 {
			return InvalidConfigf("min volatility must be > 0 when no fixed volatility is set")
		}
	}
	return nil
}
