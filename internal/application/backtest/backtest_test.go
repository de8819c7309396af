package backtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/pricing"
	"github.com/alejandrodnm/optionlab/internal/domain/strategy"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// --- fakes ---

type mockBars struct {
	mu    sync.Mutex
	bars  []domain.Bar
	err   error
	calls int
}

func (m *mockBars) FetchBars(_ context.Context, _ string, from, to time.Time) ([]domain.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Bar
	for _, b := range m.bars {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

type mockStore struct {
	mu   sync.Mutex
	runs []domain.Run
	err  error
}

func (m *mockStore) SaveRun(_ context.Context, run domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockStore) ListResults(context.Context, string, int) ([]domain.ResultRow, error) {
	return nil, nil
}

type mockObserver struct{ ids []string }

func (m *mockObserver) OnTrade(_ context.Context, _ string, t domain.Trade) error {
	m.ids = append(m.ids, t.ID)
	return nil
}

type mockSignal struct{ filter domain.EntryFilter }

func (m mockSignal) EntryFilter(context.Context, string, time.Time, time.Time) (domain.EntryFilter, error) {
	return m.filter, nil
}

func dailyBars(n int, price func(i int) float64) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := range out {
		p := price(i)
		out[i] = domain.Bar{Date: day0.AddDate(0, 0, i), Open: p, High: p, Low: p, Close: p, Volume: 1e6}
	}
	return out
}

func flat(p float64) func(int) float64 { return func(int) float64 { return p } }

func baseConfig(kind string, days int) RunConfig {
	return RunConfig{
		Name:           kind + "-test",
		Kind:           kind,
		Symbol:         "SPY",
		Start:          day0,
		End:            day0.AddDate(0, 0, days-1),
		InitialCapital: 100000,
		PositionPct:    1,
		PricingModel:   pricing.ModelBlackScholes,
		Vol:            domain.VolModel{Fixed: 0.20},
	}
}

// --- scenarios ---

func TestRun_FlatSeriesWheel(t *testing.T) {
	cfg := baseConfig(strategy.KindWheel, 60)
	cfg.Wheel = strategy.WheelParams{PutDelta: 0.25, PutDTE: 30, CallDelta: 0.30, CallDTE: 30, MaxCCCycles: 3}

	bars := &mockBars{bars: dailyBars(60, flat(450))}
	run, err := NewRunner(DefaultRegistry(), bars, nil, nil, nil).Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, run.Trades, 2)
	first := run.Trades[0]
	assert.Equal(t, domain.ExitExpired, first.ExitReason)
	assert.Equal(t, domain.OutcomeExpiredOTM, first.Outcome)
	assert.Less(t, first.Legs[0].Strike, 450.0)
	assert.Greater(t, first.PnL, 0.0)
	assert.Equal(t, domain.ExitEndOfData, run.Trades[1].ExitReason)

	for _, tr := range run.Trades {
		assert.NotEqual(t, domain.OutcomeAssigned, tr.Outcome)
	}
	assert.Greater(t, run.Results.TotalPnL, 0.0)
	assert.Equal(t, 60, run.Bars)
	assert.Equal(t, 1, bars.calls)
}

func TestRun_IronCondorPutSideBreached(t *testing.T) {
	cfg := baseConfig(strategy.KindIronCondor, 30)
	cfg.PositionPct = 0.1
	cfg.Spread = strategy.SpreadParams{
		VerticalParams: strategy.VerticalParams{ShortOTMPct: 0.05, Width: 10},
		DTE:            20,
		HoldDays:       20,
	}
	bars := dailyBars(30, func(i int) float64 {
		if i < 15 {
			return 450
		}
		return 405
	})

	run, err := NewRunner(DefaultRegistry(), &mockBars{bars: bars}, nil, nil, nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, run.Trades)

	ic := run.Trades[0]
	require.Len(t, ic.Legs, 4)
	putShort := ic.Legs[0]
	assert.Equal(t, domain.LegPut, putShort.Kind)
	assert.Contains(t, []domain.Outcome{domain.OutcomeBreachedPartial, domain.OutcomeBreachedMax}, putShort.Outcome)
	assert.Equal(t, domain.OutcomeExpiredOTM, ic.Legs[2].Outcome)

	maxLoss := (10 - ic.Premium) * 100 * float64(ic.Contracts)
	assert.Less(t, ic.PnL, 0.0)
	assert.GreaterOrEqual(t, ic.PnL, -maxLoss-1e-6)
}

func TestRun_CostsReducePnL(t *testing.T) {
	cfg := baseConfig(strategy.KindWheel, 40)
	cfg.Wheel = strategy.WheelParams{PutOTMPct: 0.05, PutDTE: 30, CallDTE: 30, MaxCCCycles: 1}

	free, err := NewRunner(DefaultRegistry(), &mockBars{bars: dailyBars(40, flat(450))}, nil, nil, nil).Run(context.Background(), cfg)
	require.NoError(t, err)

	cfg.Costs = domain.CostModel{CommissionPct: 0.01, SlippagePct: 0.005}
	costly, err := NewRunner(DefaultRegistry(), &mockBars{bars: dailyBars(40, flat(450))}, nil, nil, nil).Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Equal(t, len(free.Trades), len(costly.Trades))
	for i, tr := range costly.Trades {
		assert.InDelta(t, tr.GrossPnL-tr.Commission-tr.Slippage, tr.PnL, 1e-9)
		assert.InDelta(t, free.Trades[i].GrossPnL, tr.GrossPnL, 1e-9)
		assert.Less(t, tr.PnL, free.Trades[i].PnL)
	}
	assert.Greater(t, costly.Results.TotalCommission, 0.0)
}

func TestRun_HistoricalVolatilityWarmup(t *testing.T) {
	cfg := baseConfig(strategy.KindCreditSpread, 30)
	cfg.Start = day0.AddDate(0, 0, 40)
	cfg.End = day0.AddDate(0, 0, 69)
	cfg.Vol = domain.VolModel{Window: 20, Floor: 0.10}
	cfg.Spread = strategy.SpreadParams{
		VerticalParams: strategy.VerticalParams{Sides: strategy.SidesPut, ShortDelta: 0.2, Width: 5},
		DTE:            10,
	}
	bars := dailyBars(70, func(i int) float64 {
		if i%2 == 0 {
			return 100
		}
		return 102
	})

	run, err := NewRunner(DefaultRegistry(), &mockBars{bars: bars}, nil, nil, nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 30, run.Bars)
	assert.Equal(t, cfg.Start, run.Start)
	require.NotEmpty(t, run.Trades)
	assert.False(t, run.Trades[0].EntryDate.Before(cfg.Start))
}

// --- wiring ---

func TestRun_PersistsAndObserves(t *testing.T) {
	cfg := baseConfig(strategy.KindWheel, 60)
	cfg.Wheel = strategy.WheelParams{PutOTMPct: 0.05, PutDTE: 30, CallDTE: 30, MaxCCCycles: 1}

	store := &mockStore{}
	obs := &mockObserver{}
	run, err := NewRunner(DefaultRegistry(), &mockBars{bars: dailyBars(60, flat(450))}, store, nil, obs).Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, store.runs, 1)
	assert.Equal(t, run.ID, store.runs[0].ID)
	require.Len(t, obs.ids, len(run.Trades))
	for i, tr := range run.Trades {
		assert.Equal(t, tr.ID, obs.ids[i])
	}
	assert.Equal(t, cfg.Name, run.Results.Strategy)
	assert.Equal(t, "SPY", run.Results.Symbol)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestRun_StoreFailureSurfaces(t *testing.T) {
	cfg := baseConfig(strategy.KindWheel, 40)
	cfg.Wheel = strategy.WheelParams{PutOTMPct: 0.05, PutDTE: 30, CallDTE: 30, MaxCCCycles: 1}

	_, err := NewRunner(DefaultRegistry(), &mockBars{bars: dailyBars(40, flat(450))}, &mockStore{err: errors.New("disk full")}, nil, nil).
		Run(context.Background(), cfg)
	assert.ErrorContains(t, err, "disk full")
}

func TestRun_EntrySignalBlocksEverything(t *testing.T) {
	cfg := baseConfig(strategy.KindZeroDTE, 10)
	cfg.UseEntrySignal = true
	cfg.StrikeIncrement = 1
	cfg.ZeroDTE = strategy.ZeroDTEParams{VerticalParams: strategy.VerticalParams{Sides: strategy.SidesPut, ShortOTMPct: 0.01, Width: 2}}

	sig := mockSignal{filter: domain.DateSet{}}
	run, err := NewRunner(DefaultRegistry(), &mockBars{bars: dailyBars(10, flat(100))}, nil, sig, nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, run.Trades)
	assert.Zero(t, run.Results.TotalTrades)

	allow := domain.DateSet{day0.AddDate(0, 0, 3).Format(domain.DateLayout): true}
	run, err = NewRunner(DefaultRegistry(), &mockBars{bars: dailyBars(10, flat(100))}, nil, mockSignal{filter: allow}, nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, run.Trades, 1)
	assert.Equal(t, day0.AddDate(0, 0, 3), run.Trades[0].EntryDate)
}

func TestRun_InvalidConfigurationFailsBeforeFetch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *RunConfig)
	}{
		{"inverted dates", func(c *RunConfig) { c.End = c.Start.AddDate(0, 0, -1) }},
		{"zero capital", func(c *RunConfig) { c.InitialCapital = 0 }},
		{"unknown kind", func(c *RunConfig) { c.Kind = "butterfly" }},
		{"unknown model", func(c *RunConfig) { c.PricingModel = "binomial" }},
		{"empty spread params", func(c *RunConfig) { c.Kind = strategy.KindCreditSpread; c.Spread.DTE = 10 }},
		{"delta with heuristic", func(c *RunConfig) { c.PricingModel = pricing.ModelHeuristic }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(strategy.KindWheel, 30)
			cfg.Wheel = strategy.WheelParams{PutDelta: 0.25, PutDTE: 10, CallDTE: 10, MaxCCCycles: 1}
			tt.mutate(&cfg)

			bars := &mockBars{bars: dailyBars(30, flat(100))}
			_, err := NewRunner(DefaultRegistry(), bars, nil, nil, nil).Run(context.Background(), cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
			assert.Zero(t, bars.calls)
		})
	}
}

func TestRun_DataUnavailable(t *testing.T) {
	cfg := baseConfig(strategy.KindWheel, 30)
	cfg.Wheel = strategy.WheelParams{PutOTMPct: 0.05, PutDTE: 10, CallDTE: 10, MaxCCCycles: 1}

	_, err := NewRunner(DefaultRegistry(), &mockBars{err: errors.New("connection refused")}, nil, nil, nil).Run(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	_, err = NewRunner(DefaultRegistry(), &mockBars{}, nil, nil, nil).Run(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	// only warmup history, nothing inside the window
	old := &mockBars{bars: dailyBars(5, flat(100))}
	cfg.Start = day0.AddDate(0, 0, 10)
	cfg.End = day0.AddDate(0, 0, 20)
	cfg.Vol = domain.VolModel{Window: 3, Floor: 0.1}
	_, err = NewRunner(DefaultRegistry(), old, nil, nil, nil).Run(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestDrive_Deterministic(t *testing.T) {
	cfg := baseConfig(strategy.KindCreditSpread, 90)
	cfg.Spread = strategy.SpreadParams{
		VerticalParams: strategy.VerticalParams{Sides: strategy.SidesCall, ShortDelta: 0.2, Width: 5},
		DTE:            14,
	}
	bars := dailyBars(90, func(i int) float64 { return 100 + float64(i%7) })

	var pnls [2][]float64
	for k := range pnls {
		s, err := DefaultRegistry().Build(cfg)
		require.NoError(t, err)
		trades, err := Drive(s, bars, 0, nil)
		require.NoError(t, err)
		for _, tr := range trades {
			pnls[k] = append(pnls[k], tr.PnL)
		}
	}
	assert.NotEmpty(t, pnls[0])
	assert.Equal(t, pnls[0], pnls[1])
}

func TestSweep(t *testing.T) {
	good := baseConfig(strategy.KindWheel, 40)
	good.Wheel = strategy.WheelParams{PutOTMPct: 0.05, PutDTE: 30, CallDTE: 30, MaxCCCycles: 1}
	condor := baseConfig(strategy.KindIronCondor, 40)
	condor.Spread = strategy.SpreadParams{VerticalParams: strategy.VerticalParams{ShortOTMPct: 0.05, Width: 10}, DTE: 20}
	bad := good
	bad.Name = "broken"
	bad.InitialCapital = 0

	store := &mockStore{}
	runner := NewRunner(DefaultRegistry(), &mockBars{bars: dailyBars(40, flat(450))}, store, nil, nil)
	runs, err := Sweep(context.Background(), runner, []RunConfig{good, bad, condor}, 2)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	assert.ErrorContains(t, err, "broken")
	require.Len(t, runs, 2)
	assert.Equal(t, good.Name, runs[0].Strategy)
	assert.Equal(t, condor.Name, runs[1].Strategy)
	assert.Len(t, store.runs, 2)
}

// entryRecorder opens on every flat bar it is offered and holds for two bars.
type entryRecorder struct {
	entries []int
	openAt  int
	open    bool
}

func (r *entryRecorder) Name() string          { return "recorder" }
func (r *entryRecorder) HasOpenPosition() bool { return r.open }

func (r *entryRecorder) Settle(d strategy.Day) ([]domain.Trade, error) {
	if r.open && d.Index-r.openAt >= 2 {
		r.open = false
	}
	return nil, nil
}

func (r *entryRecorder) Enter(d strategy.Day) error {
	r.entries = append(r.entries, d.Index)
	r.openAt, r.open = d.Index, true
	return nil
}

func (r *entryRecorder) Auxiliary(strategy.Day) ([]domain.Trade, error)  { return nil, nil }
func (r *entryRecorder) ForceClose(strategy.Day) ([]domain.Trade, error) { return nil, nil }

func TestDrive_NoEntryOnLastBar(t *testing.T) {
	r := &entryRecorder{}
	_, err := Drive(r, dailyBars(7, flat(100)), 0, nil)
	require.NoError(t, err)
	// 0, 2, 4 would be followed by 6, the final bar
	assert.Equal(t, []int{0, 2, 4}, r.entries)
}

func TestRun_WheelNeverOpensOnFinalBar(t *testing.T) {
	cfg := baseConfig(strategy.KindWheel, 31)
	cfg.Wheel = strategy.WheelParams{PutOTMPct: 0.05, PutDTE: 30, CallDTE: 30, MaxCCCycles: 1}

	run, err := NewRunner(DefaultRegistry(), &mockBars{bars: dailyBars(31, flat(450))}, nil, nil, nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	for _, tr := range run.Trades {
		assert.True(t, tr.ExitDate.After(tr.EntryDate), "trade %s opened and closed on %s", tr.ID, tr.EntryDate)
	}
}
