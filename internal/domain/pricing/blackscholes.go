// Package pricing prices European options and estimates premiums for strike selection.
package pricing

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// OptionType is call or put.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Inputs for the closed-form pricer. T is in years, Vol and Rate annualized decimals.
type Inputs struct {
	Spot   float64
	Strike float64
	T      float64
	Vol    float64
	Rate   float64
	Type   OptionType
}

// Quote is a theoretical price with first-order Greeks.
// Theta is per calendar day, Vega per one volatility point.
type Quote struct {
	Price float64
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

// NormCDF is the standard normal cumulative distribution.
func NormCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// Price returns the Black-Scholes price and Greeks.
// At expiry (T == 0) the option is worth its intrinsic value.
func Price(in Inputs) (Quote, error) {
	if err := in.validate(); err != nil {
		return Quote{}, err
	}

	if in.T == 0 {
		return expiryQuote(in), nil
	}

	sqrtT := math.Sqrt(in.T)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Vol*in.Vol)*in.T) / (in.Vol * sqrtT)
	d2 := d1 - in.Vol*sqrtT
	disc := math.Exp(-in.Rate * in.T)
	pdf := NormPDF(d1)

	q := Quote{
		Gamma: pdf / (in.Spot * in.Vol * sqrtT),
		Vega:  in.Spot * pdf * sqrtT / 100,
	}
	decay := -in.Spot * pdf * in.Vol / (2 * sqrtT)

	switch in.Type {
	case Call:
		q.Price = in.Spot*NormCDF(d1) - in.Strike*disc*NormCDF(d2)
		q.Delta = NormCDF(d1)
		q.Theta = (decay - in.Rate*in.Strike*disc*NormCDF(d2)) / 365
	case Put:
		q.Price = in.Strike*disc*NormCDF(-d2) - in.Spot*NormCDF(-d1)
		q.Delta = NormCDF(d1) - 1
		q.Theta = (decay + in.Rate*in.Strike*disc*NormCDF(-d2)) / 365
	}

	// deep OTM can round to tiny negatives
	q.Price = math.Max(q.Price, 0)
	return q, nil
}

// Intrinsic is the exercise value of an option at spot.
func Intrinsic(t OptionType, spot, strike float64) float64 {
	if t == Call {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

func expiryQuote(in Inputs) Quote {
	q := Quote{Price: Intrinsic(in.Type, in.Spot, in.Strike)}
	switch {
	case in.Type == Call && in.Spot > in.Strike:
		q.Delta = 1
	case in.Type == Put && in.Spot < in.Strike:
		q.Delta = -1
	}
	return q
}

func (in Inputs) validate() error {
	switch {
	case in.Type != Call && in.Type != Put:
		return fmt.Errorf("pricing.Price: unknown option type %q: %w", in.Type, domain.ErrPricingDegenerate)
	case !positive(in.Spot) || !positive(in.Strike):
		return fmt.Errorf("pricing.Price: spot=%.4f strike=%.4f: %w", in.Spot, in.Strike, domain.ErrPricingDegenerate)
	case in.T < 0 || math.IsNaN(in.T) || math.IsInf(in.T, 0):
		return fmt.Errorf("pricing.Price: time to expiry %.6f: %w", in.T, domain.ErrPricingDegenerate)
	case !positive(in.Vol):
		return fmt.Errorf("pricing.Price: volatility %.4f: %w", in.Vol, domain.ErrPricingDegenerate)
	case math.IsNaN(in.Rate) || math.IsInf(in.Rate, 0):
		return fmt.Errorf("pricing.Price: rate %.4f: %w", in.Rate, domain.ErrPricingDegenerate)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
