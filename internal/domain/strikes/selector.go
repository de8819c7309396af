// Package strikes picks option strikes from a synthetic chain built around spot.
package strikes

import (
	"errors"
	"fmt"
	"math"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/pricing"
)

const (
	DefaultIncrement = 5.0
	DefaultRangePct  = 0.30
)

// ErrNoCandidates means the Above/Below bounds leave no positive strike to choose.
// It describes market state on one bar, not a configuration problem.
var ErrNoCandidates = errors.New("no candidate strikes")

// Request describes the strike wanted. TargetDelta is an absolute value (0.25
// means a 25-delta option regardless of type). When TargetDelta is zero the
// strike comes from OTMPct; a negative OTMPct asks for an in-the-money strike.
// Above and Below are exclusive bounds, ignored when zero.
type Request struct {
	Spot        float64
	Vol         float64
	DTE         float64
	Type        pricing.OptionType
	TargetDelta float64
	OTMPct      float64
	Above       float64
	Below       float64
}

// Selection is the chosen strike with its estimated premium.
type Selection struct {
	Strike   float64
	Premium  float64
	Delta    float64
	HasDelta bool
}

// Selector generates candidate strikes spaced at Increment within RangePct of spot
// and prices them with a single estimator.
type Selector struct {
	Increment float64
	RangePct  float64
	Estimator pricing.Estimator
}

// NewSelector applies defaults for zero values.
func NewSelector(est pricing.Estimator, increment, rangePct float64) Selector {
	if increment <= 0 {
		increment = DefaultIncrement
	}
	if rangePct <= 0 {
		rangePct = DefaultRangePct
	}
	return Selector{Increment: increment, RangePct: rangePct, Estimator: est}
}

// Select dispatches on the request: delta targeting when TargetDelta is set,
// moneyness otherwise.
func (s Selector) Select(req Request) (Selection, error) {
	if req.TargetDelta > 0 {
		return s.ByDelta(req)
	}
	return s.ByMoneyness(req)
}

// Snap rounds a price to the nearest strike increment, halves rounding up.
func (s Selector) Snap(price float64) float64 {
	return math.Round(price/s.Increment+1e-9) * s.Increment
}

// Candidates lists the strikes considered for a request, ascending.
func (s Selector) Candidates(req Request) []float64 {
	lo := math.Ceil(req.Spot*(1-s.RangePct)/s.Increment - 1e-9)
	hi := math.Floor(req.Spot*(1+s.RangePct)/s.Increment + 1e-9)
	lo = math.Max(lo, 1)

	if req.Above > 0 {
		first := math.Floor(req.Above/s.Increment+1e-9) + 1
		if first > lo {
			lo = first
		}
		// a floor above the band still gets a band's worth of strikes
		if lo > hi {
			hi = lo + math.Ceil(req.Spot*s.RangePct/s.Increment)
		}
	}

	if req.Below > 0 {
		last := math.Ceil(req.Below/s.Increment-1e-9) - 1
		// a ceiling below the band still gets a band's worth of strikes
		if last < lo {
			lo = math.Max(1, last-math.Ceil(req.Spot*s.RangePct/s.Increment))
		}
	}

	var out []float64
	for k := lo; k <= hi; k++ {
		strike := k * s.Increment
		if req.Below > 0 && strike >= req.Below {
			break
		}
		out = append(out, strike)
	}
	return out
}

// ByDelta prices every candidate and returns the one whose |delta| is closest to
// the target. Ties go to the further out-of-the-money strike.
func (s Selector) ByDelta(req Request) (Selection, error) {
	if req.TargetDelta <= 0 || req.TargetDelta >= 1 {
		return Selection{}, domain.InvalidConfigf("target delta must be in (0,1) (got %.4f)", req.TargetDelta)
	}
	if err := s.check(req); err != nil {
		return Selection{}, err
	}

	candidates := s.Candidates(req)
	if len(candidates) == 0 {
		return Selection{}, fmt.Errorf("strikes.ByDelta: around %.2f (above %.2f, below %.2f): %w",
			req.Spot, req.Above, req.Below, ErrNoCandidates)
	}

	var best Selection
	bestDist := math.Inf(1)
	for _, k := range candidates {
		e, err := s.estimate(req, k)
		if err != nil {
			return Selection{}, fmt.Errorf("strikes.ByDelta: %w", err)
		}
		if !e.HasGreeks {
			return Selection{}, domain.InvalidConfigf("delta selection needs a pricing model with greeks (got %s)", s.Estimator.Name())
		}
		dist := math.Abs(math.Abs(e.Delta) - req.TargetDelta)
		if dist < bestDist-1e-12 || (math.Abs(dist-bestDist) <= 1e-12 && moreOTM(req.Type, k, best.Strike)) {
			bestDist = dist
			best = Selection{Strike: k, Premium: e.Premium, Delta: e.Delta, HasDelta: true}
		}
	}
	return best, nil
}

// ByMoneyness places the strike a percentage away from spot: below for puts,
// above for calls, snapped to the increment and pushed inside Above/Below.
func (s Selector) ByMoneyness(req Request) (Selection, error) {
	if err := s.check(req); err != nil {
		return Selection{}, err
	}

	target := req.Spot * (1 - req.OTMPct)
	if req.Type == pricing.Call {
		target = req.Spot * (1 + req.OTMPct)
	}
	strike := s.Snap(target)
	if strike <= 0 {
		return Selection{}, domain.InvalidConfigf("moneyness %.4f puts the strike at %.2f", req.OTMPct, strike)
	}
	if req.Above > 0 && strike <= req.Above {
		strike = (math.Floor(req.Above/s.Increment+1e-9) + 1) * s.Increment
	}
	if req.Below > 0 && strike >= req.Below {
		strike = (math.Ceil(req.Below/s.Increment-1e-9) - 1) * s.Increment
	}
	if strike <= 0 {
		return Selection{}, fmt.Errorf("strikes.ByMoneyness: below %.2f: %w", req.Below, ErrNoCandidates)
	}

	e, err := s.estimate(req, strike)
	if err != nil {
		return Selection{}, fmt.Errorf("strikes.ByMoneyness: %w", err)
	}
	return Selection{Strike: strike, Premium: e.Premium, Delta: e.Delta, HasDelta: e.HasGreeks}, nil
}

func (s Selector) estimate(req Request, strike float64) (pricing.Estimate, error) {
	return s.Estimator.Estimate(pricing.EstimateInput{
		Spot:   req.Spot,
		Strike: strike,
		DTE:    req.DTE,
		Vol:    req.Vol,
		Type:   req.Type,
	})
}

func (s Selector) check(req Request) error {
	if s.Estimator == nil {
		return domain.InvalidConfigf("strike selector has no estimator")
	}
	if s.Increment <= 0 || s.RangePct <= 0 {
		return domain.InvalidConfigf("strike increment and range must be > 0")
	}
	if req.Spot <= 0 {
		return fmt.Errorf("strikes: spot %.2f: %w", req.Spot, domain.ErrPricingDegenerate)
	}
	return nil
}

func moreOTM(t pricing.OptionType, strike, than float64) bool {
	if t == pricing.Call {
		return strike > than
	}
	return strike < than
}
