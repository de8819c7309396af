package strategy

import (
	"fmt"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// SessionDTE is one regular trading session (6.5 hours) in calendar days.
const SessionDTE = 6.5 / 24

// ZeroDTEParams configures same-day credit spreads.
type ZeroDTEParams struct {
	VerticalParams
}

// ZeroDTE opens a credit spread at each eligible bar's open with one session to
// expiry and settles it against the same bar's close.
type ZeroDTE struct {
	env    Env
	params ZeroDTEParams
	sm     *Machine
	pos    *spreadPosition
}

// NewZeroDTE validates params and returns a flat 0DTE strategy.
func NewZeroDTE(env Env, p ZeroDTEParams) (*ZeroDTE, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := env.requireGreeks(p.ShortDelta); err != nil {
		return nil, err
	}
	return &ZeroDTE{env: env, params: p, sm: NewMachine(StateFlat, spreadTransitions)}, nil
}

func (z *ZeroDTE) Name() string { return z.env.Name }

func (z *ZeroDTE) HasOpenPosition() bool { return z.sm.Is(StateSpreadOpen) }

// Settle has nothing to do: positions never survive their bar.
func (z *ZeroDTE) Settle(Day) ([]domain.Trade, error) { return nil, nil }

// Enter prices the spread at the open using volatility known before the session.
func (z *ZeroDTE) Enter(d Day) error {
	if z.HasOpenPosition() {
		return nil
	}
	verticals, credit, contracts, ok, err := openVerticals(z.env, z.params.VerticalParams,
		d.Bar.Open, z.env.volBeforeOpen(d), SessionDTE, d.Date())
	if err != nil {
		return fmt.Errorf("zerodte.Enter: %w", err)
	}
	if !ok {
		return nil
	}
	if err := z.sm.Transition(StateSpreadOpen, condOpenSpread); err != nil {
		return err
	}
	z.pos = &spreadPosition{
		entry:      d.Date(),
		exitBy:     d.Date(),
		expiration: d.Date(),
		contracts:  contracts,
		verticals:  verticals,
		credit:     credit,
		capital:    (z.params.Width - credit) * domain.SharesPerContract * float64(contracts),
	}
	return nil
}

// Auxiliary settles the day's spread at the close.
func (z *ZeroDTE) Auxiliary(d Day) ([]domain.Trade, error) {
	if !z.HasOpenPosition() {
		return nil, nil
	}
	return z.settle(d, condExpired, domain.ExitExpired)
}

// ForceClose only fires if a spread is somehow still open on the last bar.
func (z *ZeroDTE) ForceClose(d Day) ([]domain.Trade, error) {
	if !z.HasOpenPosition() {
		return nil, nil
	}
	return z.settle(d, condEndOfData, domain.ExitEndOfData)
}

func (z *ZeroDTE) settle(d Day, cond string, reason domain.ExitReason) ([]domain.Trade, error) {
	if err := z.sm.Transition(StateFlat, cond); err != nil {
		return nil, err
	}
	p := z.pos
	z.pos = nil
	p.verticals = settleVerticals(p.verticals, d.Bar.Close)
	t, err := z.env.trade(p.entry, d.Date(), p.legs(), p.capital, reason)
	if err != nil {
		return nil, err
	}
	return []domain.Trade{t}, nil
}
