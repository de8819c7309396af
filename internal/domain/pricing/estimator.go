package pricing

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// Model names accepted in configuration.
const (
	ModelBlackScholes = "black_scholes"
	ModelHeuristic    = "heuristic"
)

// DaysPerYear converts calendar days to years for pricing.
const DaysPerYear = 365.0

// EstimateInput describes the option to value. DTE is in calendar days and may be
// fractional (a 0DTE session is a fraction of a day).
type EstimateInput struct {
	Spot   float64
	Strike float64
	DTE    float64
	Vol    float64
	Type   OptionType
}

// Estimate is a per-share premium. Delta is only meaningful when HasGreeks is set.
type Estimate struct {
	Premium   float64
	Delta     float64
	HasGreeks bool
}

// Estimator values options for entry, marking and forced exits.
type Estimator interface {
	Name() string
	Estimate(in EstimateInput) (Estimate, error)
}

// BlackScholes is the precise estimator.
type BlackScholes struct {
	Rate float64
}

func (BlackScholes) Name() string { return ModelBlackScholes }

func (b BlackScholes) Estimate(in EstimateInput) (Estimate, error) {
	q, err := Price(Inputs{
		Spot:   in.Spot,
		Strike: in.Strike,
		T:      math.Max(in.DTE, 0) / DaysPerYear,
		Vol:    in.Vol,
		Rate:   b.Rate,
		Type:   in.Type,
	})
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Premium: q.Price, Delta: q.Delta, HasGreeks: true}, nil
}

// Heuristic approximates premiums without a pricing model: intrinsic value plus a
// time value that peaks at the money and decays with distance from spot.
type Heuristic struct {
	BaselineVol   float64
	ATMFactor     float64
	DistanceDecay float64
	MinTick       float64
}

// NewHeuristic returns the heuristic with its calibrated defaults.
func NewHeuristic() Heuristic {
	return Heuristic{
		BaselineVol:   0.20,
		ATMFactor:     0.08,
		DistanceDecay: 10,
		MinTick:       0.05,
	}
}

func (Heuristic) Name() string { return ModelHeuristic }

func (h Heuristic) Estimate(in EstimateInput) (Estimate, error) {
	if !positive(in.Spot) || !positive(in.Strike) || in.DTE < 0 || !positive(in.Vol) {
		return Estimate{}, fmt.Errorf("pricing.Heuristic: spot=%.4f strike=%.4f dte=%.2f vol=%.4f: %w",
			in.Spot, in.Strike, in.DTE, in.Vol, domain.ErrPricingDegenerate)
	}
	if in.Type != Call && in.Type != Put {
		return Estimate{}, fmt.Errorf("pricing.Heuristic: unknown option type %q: %w", in.Type, domain.ErrPricingDegenerate)
	}

	intrinsic := Intrinsic(in.Type, in.Spot, in.Strike)
	if in.DTE == 0 {
		return Estimate{Premium: intrinsic}, nil
	}

	distance := math.Abs(in.Strike-in.Spot) / in.Spot
	timeValue := in.Spot * h.ATMFactor *
		math.Exp(-h.DistanceDecay*distance) *
		(in.Vol / h.BaselineVol) *
		math.Sqrt(in.DTE/DaysPerYear)

	return Estimate{Premium: math.Max(intrinsic+timeValue, h.MinTick)}, nil
}

// NewEstimator resolves a configured model name.
func NewEstimator(model string, rate float64) (Estimator, error) {
	switch model {
	case "", ModelBlackScholes:
		return BlackScholes{Rate: rate}, nil
	case ModelHeuristic:
		return NewHeuristic(), nil
	default:
		return nil, domain.InvalidConfigf("unknown pricing model %q", model)
	}
}
