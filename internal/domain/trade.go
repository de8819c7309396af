package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// SharesPerContract is the standard equity option multiplier.
const SharesPerContract = 100

// LegKind is the instrument behind a leg.
type LegKind string

const (
	LegPut   LegKind = "put"
	LegCall  LegKind = "call"
	LegStock LegKind = "stock"
)

// Side is the direction of a leg.
type Side string

const (
	SideShort Side = "short"
	SideLong  Side = "long"
)

// Outcome classifies how a leg ended.
type Outcome string

const (
	OutcomeExpiredOTM      Outcome = "expired_otm"
	OutcomeAssigned        Outcome = "assigned"
	OutcomeCalledAway      Outcome = "called_away"
	OutcomeBreachedPartial Outcome = "breached_partial"
	OutcomeBreachedMax     Outcome = "breached_max"
	OutcomeExercised       Outcome = "exercised"
	OutcomeClosed          Outcome = "closed"
	OutcomeLiquidated      Outcome = "liquidated"
)

// ExitReason says why a trade was closed.
type ExitReason string

const (
	ExitExpired      ExitReason = "expired"
	ExitCalledAway   ExitReason = "assigned_called_away"
	ExitMaxCCCycles  ExitReason = "max_cc_cycles"
	ExitProfitTarget ExitReason = "profit_target"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitSettled      ExitReason = "settled"
	ExitEndOfData    ExitReason = "end_of_data"
)

// Direction is the net premium direction of a trade.
type Direction string

const (
	DirectionShortPremium Direction = "short_premium"
	DirectionLongPremium  Direction = "long_premium"
)

// Leg is one instrument position inside a trade. Prices are per share:
// OpenPrice is the premium (or share price) at entry, ClosePrice the value at exit.
type Leg struct {
	Kind       LegKind
	Side       Side
	Strike     float64
	Expiration time.Time
	OpenPrice  float64
	ClosePrice float64
	Quantity   int // contracts for options, shares for stock
	Outcome    Outcome
}

// Multiplier returns the dollar multiplier per unit of Quantity.
func (l Leg) Multiplier() float64 {
	if l.Kind == LegStock {
		return 1
	}
	return SharesPerContract
}

// OpenNotional is the dollar value exchanged when the leg was opened.
func (l Leg) OpenNotional() float64 {
	return l.OpenPrice * l.Multiplier() * float64(l.Quantity)
}

// CloseNotional is the dollar value exchanged when the leg was closed.
// Options that expire worthless exchange nothing.
func (l Leg) CloseNotional() float64 {
	return l.ClosePrice * l.Multiplier() * float64(l.Quantity)
}

// GrossPnL is the leg's P&L before transaction costs.
func (l Leg) GrossPnL() float64 {
	diff := l.ClosePrice - l.OpenPrice
	if l.Side == SideShort {
		diff = -diff
	}
	return diff * l.Multiplier() * float64(l.Quantity)
}

// IsOption reports whether the leg is a put or a call.
func (l Leg) IsOption() bool {
	return l.Kind == LegPut || l.Kind == LegCall
}

// Trade is one completed cycle. Built only through NewTrade.
type Trade struct {
	ID            string
	Strategy      string
	Symbol        string
	EntryDate     time.Time
	ExitDate      time.Time
	Direction     Direction
	Legs          []Leg
	Contracts     int
	Premium       float64 // net option premium per share at entry (credit > 0)
	CapitalAtRisk float64
	GrossPnL      float64
	Commission    float64
	Slippage      float64
	PnL           float64
	PnLPct        float64
	Win           bool
	DurationDays  int
	ExitReason    ExitReason
	Outcome       Outcome
}

// TradeParams carries what a strategy knows when a position closes.
type TradeParams struct {
	Strategy      string
	Symbol        string
	EntryDate     time.Time
	ExitDate      time.Time
	Legs          []Leg
	CapitalAtRisk float64
	ExitReason    ExitReason
	Costs         CostModel
}

// NewTrade validates the params and derives P&L, costs and classification.
//
//	gross    = Σ leg gross P&L
//	costs    = CostModel over every leg's open and close notional
//	pnl      = gross − commission − slippage
//	pnl_pct  = pnl / capital_at_risk × 100
func NewTrade(p TradeParams) (Trade, error) {
	if len(p.Legs) == 0 {
		return Trade{}, fmt.Errorf("domain.NewTrade: trade has no legs")
	}
	if p.ExitDate.Before(p.EntryDate) {
		return Trade{}, fmt.Errorf("domain.NewTrade: exit %s before entry %s",
			p.ExitDate.Format(DateLayout), p.EntryDate.Format(DateLayout))
	}
	if p.CapitalAtRisk <= 0 || math.IsNaN(p.CapitalAtRisk) || math.IsInf(p.CapitalAtRisk, 0) {
		return Trade{}, fmt.Errorf("domain.NewTrade: capital at risk must be > 0 (got %.2f)", p.CapitalAtRisk)
	}
	if p.ExitReason == "" {
		return Trade{}, fmt.Errorf("domain.NewTrade: exit reason required")
	}

	var gross, premium float64
	contracts := 0
	notionals := make([]float64, 0, 2*len(p.Legs))
	for _, l := range p.Legs {
		if l.Quantity <= 0 {
			return Trade{}, fmt.Errorf("domain.NewTrade: leg %s %s has quantity %d", l.Side, l.Kind, l.Quantity)
		}
		gross += l.GrossPnL()
		notionals = append(notionals, l.OpenNotional(), l.CloseNotional())
		if l.IsOption() {
			if l.Side == SideShort {
				premium += l.OpenPrice
			} else {
				premium -= l.OpenPrice
			}
			contracts = max(contracts, l.Quantity)
		}
	}
	if contracts == 0 {
		return Trade{}, fmt.Errorf("domain.NewTrade: trade has no option legs")
	}

	costs := p.Costs.Apply(notionals...)
	pnl := gross - costs.Commission - costs.Slippage

	direction := DirectionShortPremium
	if premium < 0 {
		direction = DirectionLongPremium
	}

	legs := make([]Leg, len(p.Legs))
	copy(legs, p.Legs)

	return Trade{
		ID:            uuid.New().String(),
		Strategy:      p.Strategy,
		Symbol:        p.Symbol,
		EntryDate:     Day(p.EntryDate),
		ExitDate:      Day(p.ExitDate),
		Direction:     direction,
		Legs:          legs,
		Contracts:     contracts,
		Premium:       premium,
		CapitalAtRisk: p.CapitalAtRisk,
		GrossPnL:      gross,
		Commission:    costs.Commission,
		Slippage:      costs.Slippage,
		PnL:           pnl,
		PnLPct:        pnl / p.CapitalAtRisk * 100,
		Win:           pnl > 0,
		DurationDays:  DaysBetween(p.EntryDate, p.ExitDate),
		ExitReason:    p.ExitReason,
		Outcome:       primaryOutcome(legs),
	}, nil
}

// PrimaryLeg returns the first short option leg, which drives the trade's classification.
func (t Trade) PrimaryLeg() (Leg, bool) {
	for _, l := range t.Legs {
		if l.IsOption() && l.Side == SideShort {
			return l, true
		}
	}
	for _, l := range t.Legs {
		if l.IsOption() {
			return l, true
		}
	}
	return Leg{}, false
}

// LegsOf returns the legs of a given kind, in order.
func (t Trade) LegsOf(kind LegKind) []Leg {
	var out []Leg
	for _, l := range t.Legs {
		if l.Kind == kind {
			out = append(out, l)
		}
	}
	return out
}

// DaysBetween returns whole calendar days between two dates.
func DaysBetween(from, to time.Time) int {
	d := int(Day(to).Sub(Day(from)).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// primaryOutcome is the worst outcome among short legs, or the first leg's outcome.
func primaryOutcome(legs []Leg) Outcome {
	rank := map[Outcome]int{
		OutcomeExpiredOTM:      1,
		OutcomeClosed:          2,
		OutcomeCalledAway:      3,
		OutcomeLiquidated:      4,
		OutcomeAssigned:        5,
		OutcomeBreachedPartial: 6,
		OutcomeBreachedMax:     7,
	}
	var best Outcome
	for _, l := range legs {
		if !l.IsOption() || l.Side != SideShort {
			continue
		}
		if best == "" || rank[l.Outcome] > rank[best] {
			best = l.Outcome
		}
	}
	if best == "" {
		best = legs[0].Outcome
	}
	return best
}
