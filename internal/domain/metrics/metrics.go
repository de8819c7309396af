// Package metrics aggregates completed trades into performance statistics.
package metrics

import (
	"math"
	"sort"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

const daysPerYear = 365.0

// Compute derives every aggregate from scratch. It does not modify trades and
// returns the zero value (with InitialCapital set) for an empty list.
//
// Risk ratios use per-trade returns (PnLPct) annualized by the observed trade
// frequency: periodsPerYear = n / years spanned from first entry to last exit.
func Compute(trades []domain.Trade, initialCapital float64) domain.BacktestResults {
	r := domain.BacktestResults{InitialCapital: initialCapital}
	n := len(trades)
	if n == 0 {
		return r
	}

	ordered := make([]domain.Trade, n)
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitDate.Before(ordered[j].ExitDate)
	})

	var (
		grossProfit, grossLoss float64
		winPctSum, lossPctSum  float64
		durationSum            int
		compounded             = 1.0
		returns                = make([]float64, 0, n)
	)
	first, last := ordered[0].EntryDate, ordered[0].ExitDate

	for _, t := range ordered {
		r.TotalTrades++
		r.TotalPnL += t.PnL
		r.TotalCommission += t.Commission
		r.TotalSlippage += t.Slippage
		durationSum += t.DurationDays
		compounded *= 1 + t.PnLPct/100
		returns = append(returns, t.PnLPct/100)

		if t.EntryDate.Before(first) {
			first = t.EntryDate
		}
		if t.ExitDate.After(last) {
			last = t.ExitDate
		}

		if t.PnL > 0 {
			r.WinningTrades++
			grossProfit += t.PnL
			winPctSum += t.PnLPct
			r.LargestWin = math.Max(r.LargestWin, t.PnL)
		} else {
			r.LosingTrades++
			grossLoss += t.PnL
			lossPctSum += t.PnLPct
			r.LargestLoss = math.Min(r.LargestLoss, t.PnL)
		}
	}

	r.WinRate = float64(r.WinningTrades) / float64(n)
	if r.WinningTrades > 0 {
		r.AvgWin = grossProfit / float64(r.WinningTrades)
		r.AvgWinPct = winPctSum / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = grossLoss / float64(r.LosingTrades)
		r.AvgLossPct = lossPctSum / float64(r.LosingTrades)
	}
	r.Expectancy = r.WinRate*r.AvgWin + (1-r.WinRate)*r.AvgLoss
	r.ExpectancyPct = r.WinRate*r.AvgWinPct + (1-r.WinRate)*r.AvgLossPct
	r.AvgDurationDays = float64(durationSum) / float64(n)
	r.CompoundedReturnPct = (compounded - 1) * 100

	if initialCapital > 0 {
		r.TotalReturnPct = r.TotalPnL / initialCapital * 100
	}

	r.ProfitFactor = profitFactor(grossProfit, grossLoss)
	r.LongestWinStreak, r.LongestLossStreak = streaks(ordered)

	r.MaxDrawdown = maxDrawdown(ordered)
	if initialCapital > 0 {
		r.MaxDrawdownPct = r.MaxDrawdown / initialCapital * 100
	}

	years := math.Max(float64(domain.DaysBetween(first, last)), 1) / daysPerYear
	periodsPerYear := float64(n) / years
	r.SharpeRatio = sharpe(returns, periodsPerYear)
	r.SortinoRatio = sortino(returns, periodsPerYear)
	if r.MaxDrawdownPct > 0 {
		r.CalmarRatio = (r.TotalReturnPct / years) / r.MaxDrawdownPct
	}

	return r
}

func profitFactor(profit, loss float64) float64 {
	switch {
	case loss < 0:
		return profit / -loss
	case profit > 0:
		return math.Inf(1)
	default:
		return 0
	}
}

// maxDrawdown walks cumulative P&L from zero in exit order.
func maxDrawdown(trades []domain.Trade) float64 {
	var equity, peak, dd float64
	for _, t := range trades {
		equity += t.PnL
		peak = math.Max(peak, equity)
		dd = math.Max(dd, peak-equity)
	}
	return dd
}

func streaks(trades []domain.Trade) (win, loss int) {
	var curWin, curLoss int
	for _, t := range trades {
		if t.PnL > 0 {
			curWin++
			curLoss = 0
		} else {
			curLoss++
			curWin = 0
		}
		win = max(win, curWin)
		loss = max(loss, curLoss)
	}
	return win, loss
}

func mean(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func sharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	ss := 0.0
	for _, x := range returns {
		ss += (x - m) * (x - m)
	}
	sd := math.Sqrt(ss / float64(len(returns)-1))
	if sd < 1e-12 {
		return 0
	}
	return m / sd * math.Sqrt(periodsPerYear)
}

func sortino(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	ss := 0.0
	for _, x := range returns {
		if x < 0 {
			ss += x * x
		}
	}
	dd := math.Sqrt(ss / float64(len(returns)))
	if dd < 1e-12 {
		return 0
	}
	return mean(returns) / dd * math.Sqrt(periodsPerYear)
}
