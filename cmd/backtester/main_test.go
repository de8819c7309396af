package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/optionlab/config"
	"github.com/alejandrodnm/optionlab/internal/application/backtest"
	"github.com/alejandrodnm/optionlab/internal/domain/strategy"
)

const doc = `
backtest:
  symbol: spy
  start: 2024-01-02
  end: 2024-12-31
  initial_capital: 25000
  position_size_pct: 0.2
  max_contracts: 3
costs:
  commission_pct: 0.001
  slippage_pct: 0.002
pricing:
  volatility: 0.18
strategies:
  - name: condor
    kind: iron_condor
    use_gex: true
    spread: {short_delta: 0.16, width: 10, dte: 30, stop_loss_pct: 2}
  - name: qqq-wheel
    kind: wheel
    symbol: QQQ
    pricing_model: heuristic
    wheel: {put_otm_pct: 0.05, put_dte: 30, call_otm_pct: 0.05, call_dte: 30, max_cc_cycles: 3}
  - name: dte0
    kind: zero_dte
    zero_dte: {sides: BOTH, short_otm_pct: 0.01, width: 5}
`

func TestToRunConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	condor := toRunConfig(cfg, cfg.Strategies[0])
	assert.Equal(t, "SPY", condor.Symbol)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), condor.Start)
	assert.Equal(t, 25000.0, condor.InitialCapital)
	assert.Equal(t, 0.2, condor.PositionPct)
	assert.Equal(t, 3, condor.MaxContracts)
	assert.Equal(t, 0.002, condor.Costs.SlippagePct)
	assert.Equal(t, 0.18, condor.Vol.Fixed)
	assert.Equal(t, "black_scholes", condor.PricingModel)
	assert.True(t, condor.UseEntrySignal)
	assert.Equal(t, 10.0, condor.Spread.Width)
	assert.Equal(t, 2.0, condor.Spread.StopLossPct)
	assert.Equal(t, 0, condor.WarmupDays())

	wheel := toRunConfig(cfg, cfg.Strategies[1])
	assert.Equal(t, "QQQ", wheel.Symbol)
	assert.Equal(t, "heuristic", wheel.PricingModel)
	assert.Equal(t, 0.05, wheel.Wheel.PutOTMPct)

	zero := toRunConfig(cfg, cfg.Strategies[2])
	assert.Equal(t, strategy.SidesBoth, zero.ZeroDTE.Sides)

	reg := backtest.DefaultRegistry()
	for _, s := range cfg.Strategies {
		_, err := reg.Build(toRunConfig(cfg, s))
		assert.NoError(t, err, s.Name)
	}
}

func TestCollectPlan(t *testing.T) {
	cfg, err := config.Parse([]byte(strings.Replace(doc, "volatility: 0.18", "hv_window: 20", 1)))
	require.NoError(t, err)

	plan := collectPlan(cfg)
	assert.Len(t, plan, 2)
	assert.Greater(t, plan["SPY"], 20)
	assert.Equal(t, plan["SPY"], plan["QQQ"])
}

func TestParseGEX(t *testing.T) {
	csv := `date,symbol,net_gex,zero_gamma,call_wall,put_wall
2024-05-01,spx,2500000000,5050,5200,4900
2024-05-02,SPX,-1.1e9,,,
`
	got, err := parseGEX(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SPX", got[0].Symbol)
	assert.Equal(t, 2.5e9, got[0].NetGEX)
	assert.Equal(t, 5200.0, got[0].CallWall)
	assert.True(t, got[0].FavorsSelling())
	assert.Equal(t, 0.0, got[1].ZeroGamma)
	assert.False(t, got[1].FavorsSelling())
}

func TestParseGEX_Errors(t *testing.T) {
	_, err := parseGEX(strings.NewReader("date,symbol\n2024-05-01,SPX\n"))
	assert.ErrorContains(t, err, "net_gex")

	_, err = parseGEX(strings.NewReader("date,symbol,net_gex\n05/01/2024,SPX,1\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = parseGEX(strings.NewReader("date,symbol,net_gex\n2024-05-01,SPX,lots\n"))
	assert.ErrorContains(t, err, "net_gex")
}
