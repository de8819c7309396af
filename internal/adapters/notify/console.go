package notify

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// Console implements ports.Notifier and ports.TradeObserver on a terminal.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Notify prints the summary table followed by a detail block per run.
func (c *Console) Notify(_ context.Context, runs []*domain.Run) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(runs) == 0 {
		fmt.Fprintln(c.out, "\n  No backtest runs to report.")
		return nil
	}

	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║  BACKTEST RESULTS — %-45s║\n", fmt.Sprintf("%d run(s)", len(runs)))
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════════╝\n\n")

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Strategy", "Symbol", "Period", "Trades", "Win%", "P&L", "Return", "MaxDD", "Sharpe", "PF")
	for i, run := range runs {
		r := run.Results
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(r.Strategy, 24),
			r.Symbol,
			period(r),
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%.1f%%", r.WinRate*100),
			money(r.TotalPnL),
			fmt.Sprintf("%.2f%%", r.TotalReturnPct),
			fmt.Sprintf("%.2f%%", r.MaxDrawdownPct),
			fmt.Sprintf("%.2f", r.SharpeRatio),
			profitFactor(r.ProfitFactor),
		)
	}
	table.Render()

	fmt.Fprintln(c.out)
	for i, run := range runs {
		c.printDetail(i+1, run)
	}
	return nil
}

func (c *Console) printDetail(n int, run *domain.Run) {
	r := run.Results
	fmt.Fprintf(c.out, "  #%d %s (%s on %s)\n", n, r.Strategy, run.Kind, r.Symbol)
	fmt.Fprintf(c.out, "     Run:          %s (%d bars, %s)\n", run.ID, run.Bars, period(r))
	fmt.Fprintf(c.out, "     P&L:          %s (%.2f%% of %s)\n", money(r.TotalPnL), r.TotalReturnPct, money(r.InitialCapital))
	if r.TotalTrades == 0 {
		fmt.Fprintf(c.out, "     No trades.\n\n")
		return
	}
	fmt.Fprintf(c.out, "     Trades:       %d  (%d won, %d lost)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	fmt.Fprintf(c.out, "     Avg win:      %s (%.2f%%)   Avg loss: %s (%.2f%%)\n",
		money(r.AvgWin), r.AvgWinPct, money(r.AvgLoss), r.AvgLossPct)
	fmt.Fprintf(c.out, "     Largest:      win %s   loss %s\n", money(r.LargestWin), money(r.LargestLoss))
	fmt.Fprintf(c.out, "     Expectancy:   %s/trade (%.2f%%)\n", money(r.Expectancy), r.ExpectancyPct)
	fmt.Fprintf(c.out, "     Compounded:   %.2f%%\n", r.CompoundedReturnPct)
	fmt.Fprintf(c.out, "     Max drawdown: %s (%.2f%%)\n", money(r.MaxDrawdown), r.MaxDrawdownPct)
	fmt.Fprintf(c.out, "     Ratios:       Sharpe %.2f  Sortino %.2f  Calmar %.2f\n",
		r.SharpeRatio, r.SortinoRatio, r.CalmarRatio)
	fmt.Fprintf(c.out, "     Streaks:      %d wins / %d losses\n", r.LongestWinStreak, r.LongestLossStreak)
	fmt.Fprintf(c.out, "     Avg duration: %.1f days\n", r.AvgDurationDays)
	costs := domain.Costs{Commission: r.TotalCommission, Slippage: r.TotalSlippage}
	fmt.Fprintf(c.out, "     Costs:        %s (commission %s  slippage %s)\n\n",
		money(costs.Total()), money(costs.Commission), money(costs.Slippage))
}

// OnTrade prints one line per completed trade.
func (c *Console) OnTrade(_ context.Context, run string, t domain.Trade) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	mark := "x"
	if t.Win {
		mark = "OK"
	}
	primary := "-"
	if l, ok := t.PrimaryLeg(); ok {
		primary = legLabel(l)
	}
	fmt.Fprintf(c.out, "  [%s] %s %-7s %s → %s  %-16s %-20s %10s  [%s]\n",
		truncate(run, 20), t.Symbol, primary,
		t.EntryDate.Format(domain.DateLayout), t.ExitDate.Format(domain.DateLayout),
		t.Outcome, t.ExitReason, money(t.PnL), mark)
	return nil
}

// PrintTrades prints a stored trade list with its legs.
func (c *Console) PrintTrades(runID string, trades []domain.Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(trades) == 0 {
		fmt.Fprintf(c.out, "\n  No trades stored for run %s.\n", runID)
		return
	}

	fmt.Fprintf(c.out, "\n  Trades of run %s\n\n", runID)
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Entry", "Exit", "Legs", "Qty", "Premium", "Risk", "P&L", "P&L%", "Exit", "Outcome")
	for i, t := range trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.EntryDate.Format(domain.DateLayout),
			t.ExitDate.Format(domain.DateLayout),
			legSummary(t.Legs),
			fmt.Sprintf("%d", t.Contracts),
			fmt.Sprintf("%.2f", t.Premium),
			money(t.CapitalAtRisk),
			money(t.PnL),
			fmt.Sprintf("%.1f%%", t.PnLPct),
			string(t.ExitReason),
			string(t.Outcome),
		)
	}
	table.Render()
	fmt.Fprintln(c.out)
}

// PrintResults prints stored result rows, newest first.
func (c *Console) PrintResults(rows []domain.ResultRow) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(rows) == 0 {
		fmt.Fprintln(c.out, "\n  No stored results.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Run", "Created", "Strategy", "Symbol", "Period", "Trades", "Win%", "Return", "MaxDD", "Sharpe", "PF")
	for _, r := range rows {
		pf := "INF"
		if r.ProfitFactor != nil {
			pf = fmt.Sprintf("%.2f", *r.ProfitFactor)
		}
		table.Append(
			shortID(r.RunID),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			truncate(r.StrategyName, 24),
			r.Symbol,
			r.StartDate.Format(domain.DateLayout)+" → "+r.EndDate.Format(domain.DateLayout),
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%.1f%%", r.WinRate*100),
			fmt.Sprintf("%.2f%%", r.TotalReturnPct),
			fmt.Sprintf("%.2f%%", r.MaxDrawdownPct),
			fmt.Sprintf("%.2f", r.SharpeRatio),
			pf,
		)
	}
	table.Render()
}

// --- helpers ---

func period(r domain.BacktestResults) string {
	return r.StartDate.Format(domain.DateLayout) + " → " + r.EndDate.Format(domain.DateLayout)
}

func profitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "INF"
	}
	return fmt.Sprintf("%.2f", pf)
}

func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}

// legSummary renders legs as "-P440 +P430".
func legSummary(legs []domain.Leg) string {
	labels := make([]string, len(legs))
	for i, l := range legs {
		labels[i] = legLabel(l)
	}
	return strings.Join(labels, " ")
}

func legLabel(l domain.Leg) string {
	sign := "+"
	if l.Side == domain.SideShort {
		sign = "-"
	}
	switch l.Kind {
	case domain.LegPut:
		return fmt.Sprintf("%sP%g", sign, l.Strike)
	case domain.LegCall:
		return fmt.Sprintf("%sC%g", sign, l.Strike)
	default:
		return sign + "STK"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
