package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/metrics"
	"github.com/alejandrodnm/optionlab/internal/ports"
)

// Runner wires a run end to end: validate, fetch, simulate, aggregate, persist, observe.
// A Runner holds no per-run state and is safe for concurrent Run calls when its
// dependencies are.
type Runner struct {
	registry Registry
	bars     ports.BarProvider
	store    ports.ResultStore
	signal   ports.EntrySignal
	observer ports.TradeObserver
	now      func() time.Time
}

// NewRunner injects the dependencies. Strategy kinds resolve through registry.
// store may be nil to skip persistence; signal and observer default to no-ops.
func NewRunner(registry Registry, bars ports.BarProvider, store ports.ResultStore, signal ports.EntrySignal, observer ports.TradeObserver) *Runner {
	if signal == nil {
		signal = ports.AlwaysEnter{}
	}
	if observer == nil {
		observer = ports.NoopObserver{}
	}
	return &Runner{
		registry: registry,
		bars:     bars,
		store:    store,
		signal:   signal,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one backtest. Configuration problems fail before any I/O with
// domain.ErrInvalidConfiguration; missing or broken data fails with
// domain.ErrDataUnavailable. A run with no trades is a valid, zeroed result.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*domain.Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strat, err := r.registry.Build(cfg)
	if err != nil {
		return nil, err
	}

	started := r.now()
	from := domain.Day(cfg.Start).AddDate(0, 0, -cfg.WarmupDays())
	bars, err := r.bars.FetchBars(ctx, cfg.Symbol, from, domain.Day(cfg.End))
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) || ctx.Err() != nil {
			return nil, fmt.Errorf("backtest.Run: %s: %w", cfg.Name, err)
		}
		return nil, fmt.Errorf("backtest.Run: %s: fetch %s: %w: %w", cfg.Name, cfg.Symbol, domain.ErrDataUnavailable, err)
	}
	if err := domain.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("backtest.Run: %s %s: %w", cfg.Name, cfg.Symbol, err)
	}
	warmup := firstOnOrAfter(bars, cfg.Start)

	filter := domain.EntryFilter(domain.AllowAll{})
	if cfg.UseEntrySignal {
		filter, err = r.signal.EntryFilter(ctx, cfg.Symbol, cfg.Start, cfg.End)
		if err != nil {
			return nil, fmt.Errorf("backtest.Run: %s: entry signal: %w", cfg.Name, err)
		}
	}

	trades, err := Drive(strat, bars, warmup, filter)
	if err != nil {
		return nil, fmt.Errorf("backtest.Run: %w", err)
	}

	results := metrics.Compute(trades, cfg.InitialCapital)
	results.Strategy = cfg.Name
	results.Symbol = cfg.Symbol
	results.StartDate = domain.Day(bars[warmup].Date)
	results.EndDate = domain.Day(bars[len(bars)-1].Date)

	run := &domain.Run{
		ID:         uuid.New().String(),
		Strategy:   cfg.Name,
		Kind:       cfg.Kind,
		Symbol:     cfg.Symbol,
		Start:      results.StartDate,
		End:        results.EndDate,
		Bars:       len(bars) - warmup,
		Trades:     trades,
		Results:    results,
		StartedAt:  started,
		FinishedAt: r.now(),
	}

	if r.store != nil {
		if err := r.store.SaveRun(ctx, *run); err != nil {
			return nil, fmt.Errorf("backtest.Run: %s: save: %w", cfg.Name, err)
		}
	}

	for _, t := range trades {
		if err := r.observer.OnTrade(ctx, run.ID, t); err != nil {
			slog.Warn("trade observer failed", "run", run.ID, "trade", t.ID, "err", err)
		}
	}

	slog.Info("backtest complete",
		"strategy", cfg.Name,
		"symbol", cfg.Symbol,
		"bars", run.Bars,
		"trades", results.TotalTrades,
		"win_rate", fmt.Sprintf("%.1f%%", results.WinRate*100),
		"total_pnl", fmt.Sprintf("$%.2f", results.TotalPnL),
	)
	return run, nil
}

// firstOnOrAfter returns the index of the first bar on or after day, or len(bars).
func firstOnOrAfter(bars []domain.Bar, day time.Time) int {
	day = domain.Day(day)
	for i, b := range bars {
		if !domain.Day(b.Date).Before(day) {
			return i
		}
	}
	return len(bars)
}
