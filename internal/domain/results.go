package domain

import (
	"math"
	"time"
)

// BacktestResults aggregates the trades of one strategy run over one date range.
// It is always recomputed from the full trade list, never patched.
type BacktestResults struct {
	Strategy       string
	Symbol         string
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // 0..1

	AvgWin      float64 // $ per winning trade
	AvgLoss     float64 // $ per losing trade (<= 0)
	AvgWinPct   float64
	AvgLossPct  float64
	LargestWin  float64
	LargestLoss float64

	Expectancy    float64 // $ per trade
	ExpectancyPct float64

	TotalPnL            float64
	TotalReturnPct      float64
	CompoundedReturnPct float64
	MaxDrawdown         float64 // $ peak-to-trough of cumulative P&L
	MaxDrawdownPct      float64 // MaxDrawdown / InitialCapital × 100

	SharpeRatio  float64
	SortinoRatio float64
	CalmarRatio  float64
	ProfitFactor float64 // +Inf when there are no losses and some profit

	LongestWinStreak  int
	LongestLossStreak int
	AvgDurationDays   float64

	TotalCommission float64
	TotalSlippage   float64
}

// ResultRow is the flat shape persisted per run and consumed by reporting tools.
type ResultRow struct {
	RunID                string
	StrategyName         string
	Symbol               string
	StartDate            time.Time
	EndDate              time.Time
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	WinRate              float64
	AvgWinPct            float64
	AvgLossPct           float64
	ExpectancyPct        float64
	TotalReturnPct       float64
	MaxDrawdownPct       float64
	SharpeRatio          float64
	ProfitFactor         *float64 // nil when infinite
	AvgTradeDurationDays float64
	CreatedAt            time.Time
}

// Row flattens the results for persistence.
func (r BacktestResults) Row(runID string, createdAt time.Time) ResultRow {
	var pf *float64
	if !math.IsInf(r.ProfitFactor, 0) && !math.IsNaN(r.ProfitFactor) {
		v := r.ProfitFactor
		pf = &v
	}
	return ResultRow{
		RunID:                runID,
		StrategyName:         r.Strategy,
		Symbol:               r.Symbol,
		StartDate:            r.StartDate,
		EndDate:              r.EndDate,
		TotalTrades:          r.TotalTrades,
		WinningTrades:        r.WinningTrades,
		LosingTrades:         r.LosingTrades,
		WinRate:              r.WinRate,
		AvgWinPct:            r.AvgWinPct,
		AvgLossPct:           r.AvgLossPct,
		ExpectancyPct:        r.ExpectancyPct,
		TotalReturnPct:       r.TotalReturnPct,
		MaxDrawdownPct:       r.MaxDrawdownPct,
		SharpeRatio:          r.SharpeRatio,
		ProfitFactor:         pf,
		AvgTradeDurationDays: r.AvgDurationDays,
		CreatedAt:            createdAt,
	}
}

// Run is one completed backtest: the inputs that matter, every trade and the aggregate.
type Run struct {
	ID         string
	Strategy   string
	Kind       string
	Symbol     string
	Start      time.Time
	End        time.Time
	Bars       int
	Trades     []Trade
	Results    BacktestResults
	StartedAt  time.Time
	FinishedAt time.Time
}
