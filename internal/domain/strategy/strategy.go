// Package strategy holds the option-selling strategies as position state machines
// stepped one daily bar at a time.
package strategy

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/pricing"
	"github.com/alejandrodnm/optionlab/internal/domain/strikes"
)

// Kinds accepted in configuration.
const (
	KindWheel        = "wheel"
	KindCreditSpread = "credit_spread"
	KindIronCondor   = "iron_condor"
	KindZeroDTE      = "zero_dte"
	KindDiagonal     = "diagonal"
)

// Day is what a strategy sees on one bar. Closes holds every close up to and
// including Bar and must not be modified.
type Day struct {
	Index  int
	Bar    domain.Bar
	Closes []float64
}

// Date is the bar's calendar day.
func (d Day) Date() time.Time { return domain.Day(d.Bar.Date) }

// Strategy is stepped by the backtest driver. Per bar the driver calls Settle,
// then Enter when HasOpenPosition is false and the entry filter allows it, then
// Auxiliary. ForceClose runs once on the last bar.
type Strategy interface {
	Name() string
	HasOpenPosition() bool
	Settle(d Day) ([]domain.Trade, error)
	Enter(d Day) error
	Auxiliary(d Day) ([]domain.Trade, error)
	ForceClose(d Day) ([]domain.Trade, error)
}

// Env is what every strategy shares: pricing, strike selection, vol, costs and sizing.
type Env struct {
	Name      string
	Symbol    string
	Estimator pricing.Estimator
	Selector  strikes.Selector
	Vol       domain.VolModel
	Costs     domain.CostModel
	Sizing    domain.Sizing
}

// Validate checks the shared knobs.
func (e Env) Validate() error {
	if e.Estimator == nil {
		return domain.InvalidConfigf("strategy %s: no pricing model", e.Name)
	}
	if err := e.Vol.Validate(); err != nil {
		return err
	}
	if err := e.Costs.Validate(); err != nil {
		return err
	}
	return e.Sizing.Validate()
}

// requireGreeks fails when any delta target is set but the pricing model
// cannot produce deltas.
func (e Env) requireGreeks(deltas ...float64) error {
	used := false
	for _, d := range deltas {
		used = used || d > 0
	}
	if !used {
		return nil
	}
	sample, err := e.Estimator.Estimate(pricing.EstimateInput{Spot: 100, Strike: 100, DTE: 30, Vol: 0.2, Type: pricing.Put})
	if err != nil || !sample.HasGreeks {
		return domain.InvalidConfigf("strategy %s: delta targets need a pricing model with greeks (got %s)", e.Name, e.Estimator.Name())
	}
	return nil
}

// vol is the volatility seen at the close of d.
func (e Env) vol(d Day) float64 {
	return e.Vol.At(d.Closes)
}

// volBeforeOpen excludes d's own close, for entries priced at the open.
func (e Env) volBeforeOpen(d Day) float64 {
	if len(d.Closes) == 0 {
		return e.Vol.At(nil)
	}
	return e.Vol.At(d.Closes[:len(d.Closes)-1])
}

// mark values an open option leg at spot. Legs at or past expiration are worth intrinsic.
func (e Env) mark(l domain.Leg, spot float64, asOf time.Time, vol float64) (float64, error) {
	t := optionType(l.Kind)
	if !domain.Day(asOf).Before(domain.Day(l.Expiration)) {
		return pricing.Intrinsic(t, spot, l.Strike), nil
	}
	dte := float64(domain.DaysBetween(asOf, l.Expiration))
	est, err := e.Estimator.Estimate(pricing.EstimateInput{Spot: spot, Strike: l.Strike, DTE: dte, Vol: vol, Type: t})
	if err != nil {
		return 0, fmt.Errorf("strategy %s: mark %s %.2f on %s: %w",
			e.Name, l.Kind, l.Strike, asOf.Format(domain.DateLayout), err)
	}
	return est.Premium, nil
}

// closeAtMark marks l and flags it closed.
func (e Env) closeAtMark(l domain.Leg, spot float64, asOf time.Time, vol float64) (domain.Leg, error) {
	price, err := e.mark(l, spot, asOf, vol)
	if err != nil {
		return l, err
	}
	l.ClosePrice = price
	l.Outcome = domain.OutcomeClosed
	return l, nil
}

func (e Env) estimate(t pricing.OptionType, spot, strike, dte, vol float64) (pricing.Estimate, error) {
	return e.Estimator.Estimate(pricing.EstimateInput{Spot: spot, Strike: strike, DTE: dte, Vol: vol, Type: t})
}

func (e Env) trade(entry, exit time.Time, legs []domain.Leg, capital float64, reason domain.ExitReason) (domain.Trade, error) {
	t, err := domain.NewTrade(domain.TradeParams{
		Strategy:      e.Name,
		Symbol:        e.Symbol,
		EntryDate:     entry,
		ExitDate:      exit,
		Legs:          legs,
		CapitalAtRisk: capital,
		ExitReason:    reason,
		Costs:         e.Costs,
	})
	if err != nil {
		return domain.Trade{}, fmt.Errorf("strategy %s: %w", e.Name, err)
	}
	return t, nil
}

func optionType(k domain.LegKind) pricing.OptionType {
	if k == domain.LegCall {
		return pricing.Call
	}
	return pricing.Put
}

func legKind(t pricing.OptionType) domain.LegKind {
	if t == pricing.Call {
		return domain.LegCall
	}
	return domain.LegPut
}

// expiration is dte calendar days after the entry day.
func expiration(entry time.Time, dte int) time.Time {
	return domain.Day(entry).AddDate(0, 0, dte)
}

// due reports whether a leg expiring at exp settles on d.
func due(d Day, exp time.Time) bool {
	return !d.Date().Before(domain.Day(exp))
}

// settleShort classifies a short option at expiration by intrinsic value.
func settleShort(l domain.Leg, spot float64) domain.Leg {
	l.ClosePrice = pricing.Intrinsic(optionType(l.Kind), spot, l.Strike)
	if l.ClosePrice == 0 {
		l.Outcome = domain.OutcomeExpiredOTM
	} else {
		l.Outcome = domain.OutcomeAssigned
	}
	return l
}

// settleLong classifies a long option at expiration by intrinsic value.
func settleLong(l domain.Leg, spot float64) domain.Leg {
	l.ClosePrice = pricing.Intrinsic(optionType(l.Kind), spot, l.Strike)
	if l.ClosePrice == 0 {
		l.Outcome = domain.OutcomeExpiredOTM
	} else {
		l.Outcome = domain.OutcomeExercised
	}
	return l
}
