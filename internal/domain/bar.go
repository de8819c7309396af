package domain

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the canonical day format used for bars, trades and persistence.
const DateLayout = "2006-01-02"

// Bar is one daily OHLCV record for a symbol.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Day truncates a timestamp to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateSeries checks that bars are usable as simulation input: non-empty,
// strictly ascending by day and with positive, finite prices.
func ValidateSeries(bars []Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: empty bar series", ErrDataUnavailable)
	}
	for i, b := range bars {
		if !validPrice(b.Open) || !validPrice(b.High) || !validPrice(b.Low) || !validPrice(b.Close) {
			return fmt.Errorf("%w: bar %s has non-positive price", ErrDataUnavailable, b.Date.Format(DateLayout))
		}
		if i > 0 && !Day(b.Date).After(Day(bars[i-1].Date)) {
			return fmt.Errorf("%w: bars out of order at %s", ErrDataUnavailable, b.Date.Format(DateLayout))
		}
	}
	return nil
}

// Closes extracts closing prices in series order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
