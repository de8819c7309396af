package backtest

import (
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/pricing"
	"github.com/alejandrodnm/optionlab/internal/domain/strategy"
	"github.com/alejandrodnm/optionlab/internal/domain/strikes"
)

// RunConfig is everything one backtest run needs. Exactly one of the strategy
// parameter blocks is read, chosen by Kind.
type RunConfig struct {
	Name   string
	Kind   string
	Symbol string
	Start  time.Time
	End    time.Time

	InitialCapital float64
	PositionPct    float64
	MaxContracts   int
	Costs          domain.CostModel

	PricingModel    string
	RiskFreeRate    float64
	Vol             domain.VolModel
	StrikeIncrement float64
	StrikeRangePct  float64

	// UseEntrySignal gates entries with the configured EntrySignal.
	UseEntrySignal bool

	Wheel    strategy.WheelParams
	Spread   strategy.SpreadParams
	ZeroDTE  strategy.ZeroDTEParams
	Diagonal strategy.DiagonalParams
}

// Validate checks the run-level knobs. Strategy parameters are checked by Build.
func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return domain.InvalidConfigf("strategy name required")
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return domain.InvalidConfigf("%s: symbol required", c.Name)
	}
	if c.Start.IsZero() || c.End.IsZero() || !c.Start.Before(c.End) {
		return domain.InvalidConfigf("%s: start %s must be before end %s",
			c.Name, c.Start.Format(domain.DateLayout), c.End.Format(domain.DateLayout))
	}
	if c.RiskFreeRate < 0 || c.RiskFreeRate > 1 {
		return domain.InvalidConfigf("%s: risk free rate must be in [0,1]", c.Name)
	}
	return c.sizing().Validate()
}

func (c RunConfig) sizing() domain.Sizing {
	return domain.Sizing{Capital: c.InitialCapital, PositionPct: c.PositionPct, MaxContracts: c.MaxContracts}
}

// WarmupDays is how many calendar days of history to load before Start so
// historical volatility is available from the first simulated bar.
func (c RunConfig) WarmupDays() int {
	if c.Vol.Fixed > 0 || c.Vol.Window <= 0 {
		return 0
	}
	// trading days to calendar days, plus holidays
	return int(math.Ceil(float64(c.Vol.Window+1)*7/5)) + 7
}

// Build constructs a fresh strategy instance for the config from the factory
// registered for its kind.
func (r Registry) Build(c RunConfig) (strategy.Strategy, error) {
	factory, ok := r.Get(c.Kind)
	if !ok {
		return nil, domain.InvalidConfigf("%s: unknown strategy kind %q (known: %v)", c.Name, c.Kind, r.Kinds())
	}

	est, err := pricing.NewEstimator(c.PricingModel, c.RiskFreeRate)
	if err != nil {
		return nil, err
	}
	env := strategy.Env{
		Name:      c.Name,
		Symbol:    c.Symbol,
		Estimator: est,
		Selector:  strikes.NewSelector(est, c.StrikeIncrement, c.StrikeRangePct),
		Vol:       c.Vol,
		Costs:     c.Costs,
		Sizing:    c.sizing(),
	}
	return factory(env, c)
}
