package notify_test

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/optionlab/internal/adapters/notify"
	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/ports"
)

var (
	_ ports.Notifier      = (*notify.Console)(nil)
	_ ports.TradeObserver = (*notify.Console)(nil)
)

func makeRun(name string, pf float64) *domain.Run {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return &domain.Run{
		ID:     "0f8c2a4e-1111-2222-3333-444455556666",
		Kind:   "iron_condor",
		Symbol: "SPY",
		Bars:   250,
		Results: domain.BacktestResults{
			Strategy:        name,
			Symbol:          "SPY",
			StartDate:       start,
			EndDate:         start.AddDate(1, 0, 0),
			InitialCapital:  10000,
			TotalTrades:     12,
			WinningTrades:   9,
			LosingTrades:    3,
			WinRate:         0.75,
			TotalPnL:        1234.5,
			TotalReturnPct:  12.345,
			MaxDrawdown:     -410,
			MaxDrawdownPct:  4.1,
			SharpeRatio:     1.42,
			ProfitFactor:    pf,
			TotalCommission: 12.5,
			TotalSlippage:   3.25,
		},
	}
}

func TestConsole_Notify(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	err := c.Notify(context.Background(), []*domain.Run{
		makeRun("spy-condor", 2.5),
		makeRun("spy-wheel", math.Inf(1)),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "spy-condor")
	assert.Contains(t, out, "spy-wheel")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "$1234.50")
	assert.Contains(t, out, "2.50")
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "2024-01-02 → 2025-01-02")
	assert.Contains(t, out, "Costs:        $15.75 (commission $12.50  slippage $3.25)")
}

func TestConsole_Notify_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, notify.NewConsoleWriter(&buf).Notify(context.Background(), nil))
	assert.Contains(t, buf.String(), "No backtest runs")
}

func TestConsole_OnTrade(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	entry := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	err := c.OnTrade(context.Background(), "spy-condor", domain.Trade{
		Symbol:     "SPY",
		EntryDate:  entry,
		ExitDate:   entry.AddDate(0, 0, 30),
		PnL:        -87.25,
		Outcome:    domain.OutcomeBreachedPartial,
		ExitReason: domain.ExitExpired,
		Legs: []domain.Leg{
			{Kind: domain.LegPut, Side: domain.SideLong, Strike: 430},
			{Kind: domain.LegPut, Side: domain.SideShort, Strike: 440},
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "2024-03-01 → 2024-03-31")
	assert.Contains(t, out, "-$87.25")
	assert.Contains(t, out, "SPY -P440")
	assert.NotContains(t, out, "+P430")
	assert.Contains(t, out, "breached_partial")
	assert.Contains(t, out, "[x]")
}

func TestConsole_PrintTrades(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	entry := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c.PrintTrades("run-1", []domain.Trade{{
		EntryDate: entry,
		ExitDate:  entry.AddDate(0, 0, 30),
		Legs: []domain.Leg{
			{Kind: domain.LegPut, Side: domain.SideShort, Strike: 440},
			{Kind: domain.LegPut, Side: domain.SideLong, Strike: 430},
		},
		Contracts:  2,
		PnL:        150,
		ExitReason: domain.ExitExpired,
		Outcome:    domain.OutcomeExpiredOTM,
	}})

	out := buf.String()
	assert.Contains(t, out, "-P440 +P430")
	assert.Contains(t, out, "$150.00")

	buf.Reset()
	c.PrintTrades("run-2", nil)
	assert.Contains(t, buf.String(), "No trades stored for run run-2")
}

func TestConsole_PrintResults(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	pf := 1.8
	long := strings.Repeat("A", 40)
	c.PrintResults([]domain.ResultRow{
		{RunID: "abcdef0123456789", StrategyName: long, Symbol: "SPY", ProfitFactor: &pf, CreatedAt: time.Now()},
		{RunID: "short", StrategyName: "wheel", Symbol: "QQQ"},
	})

	out := buf.String()
	assert.Contains(t, out, "abcdef01")
	assert.NotContains(t, out, "abcdef0123")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "1.80")
	assert.Contains(t, out, "INF")
}
