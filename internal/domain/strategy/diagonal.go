package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/pricing"
	"github.com/alejandrodnm/optionlab/internal/domain/strikes"
)

const StateShortOpen State = "short_open"

var diagonalTransitions = []Transition{
	{StateFlat, StateShortOpen, condSellPut, "Primary short put sold"},
	{StateShortOpen, StateFlat, condExpired, "Primary short put expired"},
	{StateShortOpen, StateFlat, condEndOfData, "Forced exit at end of data"},
}

// DiagonalParams configures a short put financed against longer-dated put hedges.
type DiagonalParams struct {
	ShortDelta        float64
	ShortOTMPct       float64
	ShortDTE          int
	HedgeDelta        float64
	HedgeOTMPct       float64 // measured from spot, further out than the short
	LongDTE           int
	HedgeIntervalDays int
	MaxConcurrentLegs int
}

// Validate checks the diagonal knobs.
func (p DiagonalParams) Validate() error {
	if p.ShortDTE <= 0 || p.LongDTE <= 0 {
		return domain.InvalidConfigf("diagonal: short and long dte must be > 0")
	}
	if p.LongDTE <= p.ShortDTE {
		return domain.InvalidConfigf("diagonal: long dte (%d) must exceed short dte (%d)", p.LongDTE, p.ShortDTE)
	}
	if p.ShortDelta < 0 || p.ShortDelta >= 1 || p.HedgeDelta < 0 || p.HedgeDelta >= 1 {
		return domain.InvalidConfigf("diagonal: deltas must be in [0,1)")
	}
	if p.HedgeIntervalDays <= 0 || p.MaxConcurrentLegs <= 0 {
		return domain.InvalidConfigf("diagonal: hedge interval and max concurrent legs must be > 0")
	}
	return nil
}

type openLeg struct {
	entry   time.Time
	leg     domain.Leg
	capital float64
}

// Diagonal keeps one short put open at a time and layers long put hedges on a
// timer. Every leg settles on its own expiration and is reported as its own trade.
type Diagonal struct {
	env       Env
	params    DiagonalParams
	sm        *Machine
	short     *openLeg
	hedges    []openLeg
	lastHedge time.Time
}

// NewDiagonal validates params and returns a flat diagonal.
func NewDiagonal(env Env, p DiagonalParams) (*Diagonal, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := env.requireGreeks(p.ShortDelta, p.HedgeDelta); err != nil {
		return nil, err
	}
	return &Diagonal{env: env, params: p, sm: NewMachine(StateFlat, diagonalTransitions)}, nil
}

func (g *Diagonal) Name() string { return g.env.Name }

func (g *Diagonal) HasOpenPosition() bool { return g.sm.Is(StateShortOpen) }

// OpenHedges is the number of hedge legs currently held.
func (g *Diagonal) OpenHedges() int { return len(g.hedges) }

// Settle expires the short and any hedges that are due.
func (g *Diagonal) Settle(d Day) ([]domain.Trade, error) {
	var out []domain.Trade
	spot := d.Bar.Close

	if g.short != nil && due(d, g.short.leg.Expiration) {
		leg := settleShort(g.short.leg, spot)
		if err := g.sm.Transition(StateFlat, condExpired); err != nil {
			return nil, err
		}
		t, err := g.env.trade(g.short.entry, d.Date(), []domain.Leg{leg}, g.short.capital, domain.ExitExpired)
		if err != nil {
			return nil, err
		}
		g.short = nil
		out = append(out, t)
	}

	kept := g.hedges[:0]
	for _, h := range g.hedges {
		if !due(d, h.leg.Expiration) {
			kept = append(kept, h)
			continue
		}
		leg := settleLong(h.leg, spot)
		t, err := g.env.trade(h.entry, d.Date(), []domain.Leg{leg}, h.capital, domain.ExitExpired)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	g.hedges = kept
	return out, nil
}

// Enter sells the primary short put, cash-secured.
func (g *Diagonal) Enter(d Day) error {
	if g.HasOpenPosition() {
		return nil
	}
	sel, err := g.env.Selector.Select(strikes.Request{
		Spot:        d.Bar.Close,
		Vol:         g.env.vol(d),
		DTE:         float64(g.params.ShortDTE),
		Type:        pricing.Put,
		TargetDelta: g.params.ShortDelta,
		OTMPct:      g.params.ShortOTMPct,
	})
	if err != nil {
		return fmt.Errorf("diagonal.Enter: %w", err)
	}
	if sel.Premium <= 0 {
		return nil
	}
	contracts := g.env.Sizing.Contracts(sel.Strike * domain.SharesPerContract)
	if contracts == 0 {
		return nil
	}
	if err := g.sm.Transition(StateShortOpen, condSellPut); err != nil {
		return err
	}
	g.short = &openLeg{
		entry: d.Date(),
		leg: domain.Leg{
			Kind:       domain.LegPut,
			Side:       domain.SideShort,
			Strike:     sel.Strike,
			Expiration: expiration(d.Date(), g.params.ShortDTE),
			OpenPrice:  sel.Premium,
			Quantity:   contracts,
		},
		capital: sel.Strike * domain.SharesPerContract * float64(contracts),
	}
	return nil
}

// Auxiliary buys a hedge when the timer has elapsed and there is room for one.
func (g *Diagonal) Auxiliary(d Day) ([]domain.Trade, error) {
	if g.short == nil || len(g.hedges) >= g.params.MaxConcurrentLegs {
		return nil, nil
	}
	if !g.lastHedge.IsZero() && domain.DaysBetween(g.lastHedge, d.Date()) < g.params.HedgeIntervalDays {
		return nil, nil
	}

	sel, err := g.env.Selector.Select(strikes.Request{
		Spot:        d.Bar.Close,
		Vol:         g.env.vol(d),
		DTE:         float64(g.params.LongDTE),
		Type:        pricing.Put,
		TargetDelta: g.params.HedgeDelta,
		OTMPct:      g.params.HedgeOTMPct,
		Below:       g.short.leg.Strike,
	})
	if errors.Is(err, strikes.ErrNoCandidates) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("diagonal.Auxiliary: %w", err)
	}
	if sel.Premium <= 0 {
		return nil, nil
	}
	qty := g.short.leg.Quantity
	g.hedges = append(g.hedges, openLeg{
		entry: d.Date(),
		leg: domain.Leg{
			Kind:       domain.LegPut,
			Side:       domain.SideLong,
			Strike:     sel.Strike,
			Expiration: expiration(d.Date(), g.params.LongDTE),
			OpenPrice:  sel.Premium,
			Quantity:   qty,
		},
		capital: sel.Premium * domain.SharesPerContract * float64(qty),
	})
	g.lastHedge = d.Date()
	return nil, nil
}

// ForceClose marks every open leg and closes it.
func (g *Diagonal) ForceClose(d Day) ([]domain.Trade, error) {
	var out []domain.Trade
	spot, vol := d.Bar.Close, g.env.vol(d)

	if g.short != nil {
		leg, err := g.env.closeAtMark(g.short.leg, spot, d.Date(), vol)
		if err != nil {
			return nil, err
		}
		if err := g.sm.Transition(StateFlat, condEndOfData); err != nil {
			return nil, err
		}
		t, err := g.env.trade(g.short.entry, d.Date(), []domain.Leg{leg}, g.short.capital, domain.ExitEndOfData)
		if err != nil {
			return nil, err
		}
		g.short = nil
		out = append(out, t)
	}

	for _, h := range g.hedges {
		leg, err := g.env.closeAtMark(h.leg, spot, d.Date(), vol)
		if err != nil {
			return nil, err
		}
		t, err := g.env.trade(h.entry, d.Date(), []domain.Leg{leg}, h.capital, domain.ExitEndOfData)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	g.hedges = nil
	return out, nil
}
