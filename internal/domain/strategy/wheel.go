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
	StateNoPosition    State = "no_position"
	StateCSPOpen       State = "csp_open"
	StateHoldingShares State = "holding_shares"
	StateCCOpen        State = "cc_open"
)

const (
	condSellPut     = "sell_put"
	condPutExpired  = "put_expired"
	condPutAssigned = "put_assigned"
	condSellCall    = "sell_call"
	condCallExpired = "call_expired"
	condCalledAway  = "called_away"
	condMaxCycles   = "max_cc_cycles"
	condEndOfData   = "end_of_data"
)

var wheelTransitions = []Transition{
	{StateNoPosition, StateCSPOpen, condSellPut, "Cash-secured put sold"},
	{StateCSPOpen, StateNoPosition, condPutExpired, "Put expired worthless"},
	{StateCSPOpen, StateHoldingShares, condPutAssigned, "Put assigned, shares bought at strike"},
	{StateHoldingShares, StateCCOpen, condSellCall, "Covered call sold against shares"},
	{StateCCOpen, StateHoldingShares, condCallExpired, "Call expired worthless, shares kept"},
	{StateCCOpen, StateNoPosition, condCalledAway, "Shares called away at call strike"},
	{StateHoldingShares, StateNoPosition, condMaxCycles, "Covered call limit reached, shares liquidated"},
	{StateCSPOpen, StateNoPosition, condEndOfData, "Forced exit at end of data"},
	{StateHoldingShares, StateNoPosition, condEndOfData, "Forced exit at end of data"},
	{StateCCOpen, StateNoPosition, condEndOfData, "Forced exit at end of data"},
}

// WheelParams configures the wheel. Each leg is selected by delta when its delta
// is set, by OTM percentage otherwise (zero is at the money).
type WheelParams struct {
	PutDelta     float64
	PutOTMPct    float64
	PutDTE       int
	CallDelta    float64
	CallOTMPct   float64
	CallDTE      int
	MaxCCCycles  int
	CCMinGainPct float64 // call strike must be above cost basis × (1 + CCMinGainPct)
}

// Validate checks the wheel knobs.
func (p WheelParams) Validate() error {
	if p.PutDTE <= 0 || p.CallDTE <= 0 {
		return domain.InvalidConfigf("wheel: put and call dte must be > 0")
	}
	if p.PutDelta < 0 || p.PutDelta >= 1 || p.CallDelta < 0 || p.CallDelta >= 1 {
		return domain.InvalidConfigf("wheel: deltas must be in [0,1)")
	}
	if p.MaxCCCycles <= 0 {
		return domain.InvalidConfigf("wheel: max cc cycles must be > 0")
	}
	if p.CCMinGainPct < 0 {
		return domain.InvalidConfigf("wheel: cc min gain must be >= 0")
	}
	return nil
}

// WheelStats counts lifecycle events across a run.
type WheelStats struct {
	PutsSold     int
	Assignments  int
	CallsSold    int
	CalledAway   int
	Liquidations int
}

type wheelCycle struct {
	entry     time.Time
	contracts int
	put       domain.Leg
	costBasis float64
	calls     []domain.Leg
	open      *domain.Leg
}

func (c *wheelCycle) capital() float64 {
	return c.put.Strike * domain.SharesPerContract * float64(c.contracts)
}

func (c *wheelCycle) shares() int {
	return c.contracts * domain.SharesPerContract
}

// Wheel sells cash-secured puts until assigned, then covered calls until the
// shares are called away or the call limit forces a liquidation.
type Wheel struct {
	env    Env
	params WheelParams
	sm     *Machine
	cycle  *wheelCycle
	stats  WheelStats
}

// NewWheel validates params and returns a flat wheel.
func NewWheel(env Env, p WheelParams) (*Wheel, error) {
	if p.CCMinGainPct == 0 {
		p.CCMinGainPct = 0.01
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := env.requireGreeks(p.PutDelta, p.CallDelta); err != nil {
		return nil, err
	}
	sm := NewMachine(StateNoPosition, wheelTransitions)
	sm.SetLimit(StateCCOpen, p.MaxCCCycles)
	return &Wheel{env: env, params: p, sm: sm}, nil
}

func (w *Wheel) Name() string { return w.env.Name }

// State exposes the lifecycle state.
func (w *Wheel) State() State { return w.sm.Current() }

// Stats returns the event counters.
func (w *Wheel) Stats() WheelStats { return w.stats }

func (w *Wheel) HasOpenPosition() bool { return !w.sm.Is(StateNoPosition) }

// Settle expires the open put or call when due.
func (w *Wheel) Settle(d Day) ([]domain.Trade, error) {
	switch w.sm.Current() {
	case StateCSPOpen:
		if !due(d, w.cycle.put.Expiration) {
			return nil, nil
		}
		return w.settlePut(d)
	case StateCCOpen:
		if !due(d, w.cycle.open.Expiration) {
			return nil, nil
		}
		return w.settleCall(d)
	}
	return nil, nil
}

func (w *Wheel) settlePut(d Day) ([]domain.Trade, error) {
	c := w.cycle
	spot := d.Bar.Close

	// settlement exactly at the strike is out of the money
	if spot >= c.put.Strike {
		c.put.ClosePrice = 0
		c.put.Outcome = domain.OutcomeExpiredOTM
		if err := w.sm.Transition(StateNoPosition, condPutExpired); err != nil {
			return nil, err
		}
		t, err := w.env.trade(c.entry, d.Date(), []domain.Leg{c.put}, c.capital(), domain.ExitExpired)
		w.finish()
		if err != nil {
			return nil, err
		}
		return []domain.Trade{t}, nil
	}

	// assignment: the put is delivered, not bought back
	c.put.ClosePrice = 0
	c.put.Outcome = domain.OutcomeAssigned
	c.costBasis = c.put.Strike - c.put.OpenPrice
	w.stats.Assignments++
	slog.Debug("wheel put assigned",
		"strategy", w.env.Name, "date", d.Date().Format(domain.DateLayout),
		"strike", c.put.Strike, "close", spot, "cost_basis", c.costBasis)
	return nil, w.sm.Transition(StateHoldingShares, condPutAssigned)
}

func (w *Wheel) settleCall(d Day) ([]domain.Trade, error) {
	c := w.cycle
	spot := d.Bar.Close
	call := *c.open
	c.open = nil

	if spot >= call.Strike {
		call.Outcome = domain.OutcomeCalledAway
		c.calls = append(c.calls, call)
		w.stats.CalledAway++
		if err := w.sm.Transition(StateNoPosition, condCalledAway); err != nil {
			return nil, err
		}
		return w.closeCycle(d, call.Strike, domain.OutcomeCalledAway, domain.ExitCalledAway)
	}

	call.Outcome = domain.OutcomeExpiredOTM
	c.calls = append(c.calls, call)
	if err := w.sm.Transition(StateHoldingShares, condCallExpired); err != nil {
		return nil, err
	}
	if w.sm.Count(StateCCOpen) < w.params.MaxCCCycles {
		return nil, nil
	}

	w.stats.Liquidations++
	if err := w.sm.Transition(StateNoPosition, condMaxCycles); err != nil {
		return nil, err
	}
	return w.closeCycle(d, spot, domain.OutcomeLiquidated, domain.ExitMaxCCCycles)
}

// closeCycle sells the shares at price and emits the cycle's trade.
func (w *Wheel) closeCycle(d Day, price float64, outcome domain.Outcome, reason domain.ExitReason) ([]domain.Trade, error) {
	c := w.cycle
	legs := make([]domain.Leg, 0, 2+len(c.calls))
	legs = append(legs, c.put, domain.Leg{
		Kind:       domain.LegStock,
		Side:       domain.SideLong,
		OpenPrice:  c.put.Strike,
		ClosePrice: price,
		Quantity:   c.shares(),
		Outcome:    outcome,
	})
	legs = append(legs, c.calls...)

	t, err := w.env.trade(c.entry, d.Date(), legs, c.capital(), reason)
	w.finish()
	if err != nil {
		return nil, err
	}
	return []domain.Trade{t}, nil
}

func (w *Wheel) finish() {
	w.cycle = nil
	w.sm.Reset()
}

// Enter sells a cash-secured put sized against the strike.
func (w *Wheel) Enter(d Day) error {
	if w.HasOpenPosition() {
		return nil
	}
	spot := d.Bar.Close
	sel, err := w.env.Selector.Select(strikes.Request{
		Spot:        spot,
		Vol:         w.env.vol(d),
		DTE:         float64(w.params.PutDTE),
		Type:        pricing.Put,
		TargetDelta: w.params.PutDelta,
		OTMPct:      w.params.PutOTMPct,
	})
	if err != nil {
		return fmt.Errorf("wheel.Enter: %w", err)
	}
	if sel.Premium <= 0 {
		return nil
	}
	contracts := w.env.Sizing.Contracts(sel.Strike * domain.SharesPerContract)
	if contracts == 0 {
		slog.Debug("wheel entry skipped, position too large",
			"strategy", w.env.Name, "strike", sel.Strike, "capital", w.env.Sizing.Capital)
		return nil
	}

	if err := w.sm.Transition(StateCSPOpen, condSellPut); err != nil {
		return err
	}
	w.cycle = &wheelCycle{
		entry:     d.Date(),
		contracts: contracts,
		put: domain.Leg{
			Kind:       domain.LegPut,
			Side:       domain.SideShort,
			Strike:     sel.Strike,
			Expiration: expiration(d.Date(), w.params.PutDTE),
			OpenPrice:  sel.Premium,
			Quantity:   contracts,
		},
	}
	w.stats.PutsSold++
	return nil
}

// Auxiliary sells a covered call whenever shares are held without one.
func (w *Wheel) Auxiliary(d Day) ([]domain.Trade, error) {
	if !w.sm.Is(StateHoldingShares) {
		return nil, nil
	}
	c := w.cycle
	sel, err := w.env.Selector.Select(strikes.Request{
		Spot:        d.Bar.Close,
		Vol:         w.env.vol(d),
		DTE:         float64(w.params.CallDTE),
		Type:        pricing.Call,
		TargetDelta: w.params.CallDelta,
		OTMPct:      w.params.CallOTMPct,
		Above:       c.costBasis * (1 + w.params.CCMinGainPct),
	})
	if err != nil {
		return nil, fmt.Errorf("wheel.Auxiliary: %w", err)
	}
	if err := w.sm.Transition(StateCCOpen, condSellCall); err != nil {
		return nil, err
	}
	c.open = &domain.Leg{
		Kind:       domain.LegCall,
		Side:       domain.SideShort,
		Strike:     sel.Strike,
		Expiration: expiration(d.Date(), w.params.CallDTE),
		OpenPrice:  sel.Premium,
		Quantity:   c.contracts,
	}
	w.stats.CallsSold++
	return nil, nil
}

// ForceClose buys back open options at their mark and sells any shares at the close.
func (w *Wheel) ForceClose(d Day) ([]domain.Trade, error) {
	if !w.HasOpenPosition() {
		return nil, nil
	}
	c := w.cycle
	spot := d.Bar.Close
	vol := w.env.vol(d)
	from := w.sm.Current()

	if from == StateCSPOpen {
		put, err := w.env.closeAtMark(c.put, spot, d.Date(), vol)
		if err != nil {
			return nil, err
		}
		if err := w.sm.Transition(StateNoPosition, condEndOfData); err != nil {
			return nil, err
		}
		c.put = put
		t, err := w.env.trade(c.entry, d.Date(), []domain.Leg{c.put}, c.capital(), domain.ExitEndOfData)
		w.finish()
		if err != nil {
			return nil, err
		}
		return []domain.Trade{t}, nil
	}

	if c.open != nil {
		call, err := w.env.closeAtMark(*c.open, spot, d.Date(), vol)
		if err != nil {
			return nil, err
		}
		c.calls = append(c.calls, call)
		c.open = nil
	}
	if err := w.sm.Transition(StateNoPosition, condEndOfData); err != nil {
		return nil, err
	}
	return w.closeCycle(d, spot, domain.OutcomeClosed, domain.ExitEndOfData)
}
