package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/pricing"
	"github.com/alejandrodnm/optionlab/internal/domain/strikes"
)

const (
	StateFlat       State = "flat"
	StateSpreadOpen State = "spread_open"
)

const (
	condOpenSpread   = "open_spread"
	condExpired      = "expired"
	condSettled      = "settled"
	condProfitTarget = "profit_target"
	condStopLoss     = "stop_loss"
)

var spreadTransitions = []Transition{
	{StateFlat, StateSpreadOpen, condOpenSpread, "Credit spread opened"},
	{StateSpreadOpen, StateFlat, condExpired, "Spread settled at expiration"},
	{StateSpreadOpen, StateFlat, condSettled, "Holding horizon reached"},
	{StateSpreadOpen, StateFlat, condProfitTarget, "Closed at profit target"},
	{StateSpreadOpen, StateFlat, condStopLoss, "Closed at stop loss"},
	{StateSpreadOpen, StateFlat, condEndOfData, "Forced exit at end of data"},
}

// Sides selects which verticals a credit spread sells.
type Sides string

const (
	SidesPut  Sides = "put"
	SidesCall Sides = "call"
	SidesBoth Sides = "both" // iron condor
)

func (s Sides) types() []pricing.OptionType {
	switch s {
	case SidesPut:
		return []pricing.OptionType{pricing.Put}
	case SidesCall:
		return []pricing.OptionType{pricing.Call}
	case SidesBoth:
		return []pricing.OptionType{pricing.Put, pricing.Call}
	}
	return nil
}

// VerticalParams pick the short strike and the wing width of each vertical.
type VerticalParams struct {
	Sides       Sides
	ShortDelta  float64
	ShortOTMPct float64
	Width       float64
}

// Validate checks the vertical knobs.
func (p VerticalParams) Validate() error {
	if p.Sides.types() == nil {
		return domain.InvalidConfigf("spread: sides must be put, call or both (got %q)", p.Sides)
	}
	if p.Width <= 0 {
		return domain.InvalidConfigf("spread: width must be > 0 (got %.2f)", p.Width)
	}
	if p.ShortDelta < 0 || p.ShortDelta >= 1 {
		return domain.InvalidConfigf("spread: short delta must be in [0,1)")
	}
	return nil
}

// SpreadParams configures a held credit spread or iron condor.
type SpreadParams struct {
	VerticalParams
	DTE             int
	HoldDays        int     // 0 holds to expiration
	ProfitTargetPct float64 // fraction of credit, 0 disables
	StopLossPct     float64 // multiple of credit, 0 disables
}

// Validate checks the spread knobs.
func (p SpreadParams) Validate() error {
	if err := p.VerticalParams.Validate(); err != nil {
		return err
	}
	if p.DTE <= 0 {
		return domain.InvalidConfigf("spread: dte must be > 0")
	}
	if p.HoldDays < 0 || p.ProfitTargetPct < 0 || p.StopLossPct < 0 {
		return domain.InvalidConfigf("spread: hold days, profit target and stop loss must be >= 0")
	}
	return nil
}

type vertical struct {
	short domain.Leg
	long  domain.Leg
}

func (v vertical) credit() float64 { return v.short.OpenPrice - v.long.OpenPrice }

type spreadPosition struct {
	entry      time.Time
	exitBy     time.Time
	contracts  int
	verticals  []vertical
	credit     float64 // per share, all sides
	capital    float64
	expiration time.Time
}

func (p *spreadPosition) legs() []domain.Leg {
	out := make([]domain.Leg, 0, 2*len(p.verticals))
	for _, v := range p.verticals {
		out = append(out, v.short, v.long)
	}
	return out
}

// openVerticals prices the verticals of a new position at spot. ok is false when
// the position cannot be opened: non-positive credit, inverted condor or no size.
func openVerticals(env Env, p VerticalParams, spot, vol, dte float64, exp time.Time) (verticals []vertical, credit float64, contracts int, ok bool, err error) {
	for _, t := range p.Sides.types() {
		sel, err := env.Selector.Select(strikes.Request{
			Spot:        spot,
			Vol:         vol,
			DTE:         dte,
			Type:        t,
			TargetDelta: p.ShortDelta,
			OTMPct:      p.ShortOTMPct,
		})
		if err != nil {
			return nil, 0, 0, false, err
		}

		longStrike := sel.Strike - p.Width
		if t == pricing.Call {
			longStrike = sel.Strike + p.Width
		}
		if longStrike <= 0 {
			return nil, 0, 0, false, nil
		}
		long, err := env.estimate(t, spot, longStrike, dte, vol)
		if err != nil {
			return nil, 0, 0, false, err
		}

		v := vertical{
			short: domain.Leg{Kind: legKind(t), Side: domain.SideShort, Strike: sel.Strike, Expiration: exp, OpenPrice: sel.Premium},
			long:  domain.Leg{Kind: legKind(t), Side: domain.SideLong, Strike: longStrike, Expiration: exp, OpenPrice: long.Premium},
		}
		if v.credit() <= 0 {
			return nil, 0, 0, false, nil
		}
		verticals = append(verticals, v)
		credit += v.credit()
	}

	// an iron condor needs the put short strictly below the call short
	if len(verticals) == 2 && verticals[0].short.Strike >= verticals[1].short.Strike {
		return nil, 0, 0, false, nil
	}
	if credit >= p.Width {
		return nil, 0, 0, false, nil
	}

	// only one side of a condor can finish in the money
	contracts = env.Sizing.Contracts((p.Width - credit) * domain.SharesPerContract)
	if contracts == 0 {
		return nil, 0, 0, false, nil
	}
	for i := range verticals {
		verticals[i].short.Quantity = contracts
		verticals[i].long.Quantity = contracts
	}
	return verticals, credit, contracts, true, nil
}

// settleVerticals classifies every side by where spot finished against its strikes.
func settleVerticals(vs []vertical, spot float64) []vertical {
	out := make([]vertical, len(vs))
	for i, v := range vs {
		short := settleShort(v.short, spot)
		long := settleLong(v.long, spot)
		switch {
		case short.ClosePrice == 0:
		case long.ClosePrice > 0:
			short.Outcome = domain.OutcomeBreachedMax
		default:
			short.Outcome = domain.OutcomeBreachedPartial
		}
		out[i] = vertical{short: short, long: long}
	}
	return out
}

// CreditSpread sells a put spread, a call spread or both (an iron condor) and holds
// it to expiration or the holding horizon, with optional early exits.
type CreditSpread struct {
	env    Env
	params SpreadParams
	sm     *Machine
	pos    *spreadPosition
}

// NewCreditSpread validates params and returns a flat spread strategy.
func NewCreditSpread(env Env, p SpreadParams) (*CreditSpread, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := env.requireGreeks(p.ShortDelta); err != nil {
		return nil, err
	}
	return &CreditSpread{env: env, params: p, sm: NewMachine(StateFlat, spreadTransitions)}, nil
}

func (s *CreditSpread) Name() string { return s.env.Name }

func (s *CreditSpread) HasOpenPosition() bool { return s.sm.Is(StateSpreadOpen) }

// Enter opens the spread at the close.
func (s *CreditSpread) Enter(d Day) error {
	if s.HasOpenPosition() {
		return nil
	}
	exp := expiration(d.Date(), s.params.DTE)
	verticals, credit, contracts, ok, err := openVerticals(s.env, s.params.VerticalParams,
		d.Bar.Close, s.env.vol(d), float64(s.params.DTE), exp)
	if err != nil {
		return fmt.Errorf("spread.Enter: %w", err)
	}
	if !ok {
		slog.Debug("spread entry skipped", "strategy", s.env.Name, "date", d.Date().Format(domain.DateLayout))
		return nil
	}
	if err := s.sm.Transition(StateSpreadOpen, condOpenSpread); err != nil {
		return err
	}

	exitBy := exp
	if s.params.HoldDays > 0 && s.params.HoldDays < s.params.DTE {
		exitBy = expiration(d.Date(), s.params.HoldDays)
	}
	s.pos = &spreadPosition{
		entry:      d.Date(),
		exitBy:     exitBy,
		contracts:  contracts,
		verticals:  verticals,
		credit:     credit,
		capital:    (s.params.Width - credit) * domain.SharesPerContract * float64(contracts),
		expiration: exp,
	}
	return nil
}

// Settle closes the position at its horizon or on an early-exit trigger.
func (s *CreditSpread) Settle(d Day) ([]domain.Trade, error) {
	if !s.HasOpenPosition() {
		return nil, nil
	}
	p := s.pos
	spot := d.Bar.Close

	if due(d, p.exitBy) {
		cond, reason := condSettled, domain.ExitSettled
		if due(d, p.expiration) {
			cond, reason = condExpired, domain.ExitExpired
		}
		p.verticals = settleVerticals(p.verticals, spot)
		return s.close(d, cond, reason)
	}

	if s.params.ProfitTargetPct == 0 && s.params.StopLossPct == 0 {
		return nil, nil
	}
	// early exits need real pricing, so the heuristic never triggers them
	if s.env.Estimator.Name() != pricing.ModelBlackScholes {
		return nil, nil
	}
	marked, cost, err := s.markToMarket(d)
	if err != nil {
		return nil, err
	}
	profit := p.credit - cost
	switch {
	case s.params.ProfitTargetPct > 0 && profit >= s.params.ProfitTargetPct*p.credit:
		p.verticals = marked
		return s.close(d, condProfitTarget, domain.ExitProfitTarget)
	case s.params.StopLossPct > 0 && -profit >= s.params.StopLossPct*p.credit:
		p.verticals = marked
		return s.close(d, condStopLoss, domain.ExitStopLoss)
	}
	return nil, nil
}

// markToMarket values every leg with the pricing model and returns the cost to
// buy all verticals back.
func (s *CreditSpread) markToMarket(d Day) ([]vertical, float64, error) {
	spot, vol := d.Bar.Close, s.env.vol(d)
	out := make([]vertical, len(s.pos.verticals))
	cost := 0.0
	for i, v := range s.pos.verticals {
		var err error
		if v.short, err = s.env.closeAtMark(v.short, spot, d.Date(), vol); err != nil {
			return nil, 0, err
		}
		if v.long, err = s.env.closeAtMark(v.long, spot, d.Date(), vol); err != nil {
			return nil, 0, err
		}
		cost += v.short.ClosePrice - v.long.ClosePrice
		out[i] = v
	}
	return out, cost, nil
}

func (s *CreditSpread) close(d Day, cond string, reason domain.ExitReason) ([]domain.Trade, error) {
	if err := s.sm.Transition(StateFlat, cond); err != nil {
		return nil, err
	}
	p := s.pos
	s.pos = nil
	t, err := s.env.trade(p.entry, d.Date(), p.legs(), p.capital, reason)
	if err != nil {
		return nil, err
	}
	return []domain.Trade{t}, nil
}

func (s *CreditSpread) Auxiliary(Day) ([]domain.Trade, error) { return nil, nil }

// ForceClose buys the spread back at its mark.
func (s *CreditSpread) ForceClose(d Day) ([]domain.Trade, error) {
	if !s.HasOpenPosition() {
		return nil, nil
	}
	marked, _, err := s.markToMarket(d)
	if err != nil {
		return nil, err
	}
	s.pos.verticals = marked
	return s.close(d, condEndOfData, domain.ExitEndOfData)
}
