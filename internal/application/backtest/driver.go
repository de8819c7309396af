// Package backtest runs strategies over historical bars and aggregates the results.
package backtest

import (
	"fmt"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/strategy"
)

// Drive steps a strategy through bars[warmup:]. Earlier bars only feed the
// close history used for volatility. Per bar: Settle, Enter when flat and the
// filter allows the day, Auxiliary. The last bar never opens a position; whatever
// is still open after it is force-closed against it.
//
// Drive is single-threaded, performs no I/O and is deterministic for a given
// strategy, series and filter.
func Drive(s strategy.Strategy, bars []domain.Bar, warmup int, filter domain.EntryFilter) ([]domain.Trade, error) {
	if warmup < 0 || warmup >= len(bars) {
		return nil, fmt.Errorf("backtest.Drive: no bars after %d warmup bars: %w", warmup, domain.ErrDataUnavailable)
	}
	if filter == nil {
		filter = domain.AllowAll{}
	}

	closes := domain.Closes(bars)
	last := len(bars) - 1
	var trades []domain.Trade

	for i := warmup; i < len(bars); i++ {
		d := strategy.Day{Index: i - warmup, Bar: bars[i], Closes: closes[:i+1]}

		settled, err := s.Settle(d)
		if err != nil {
			return nil, fmt.Errorf("backtest.Drive: %s settle %s: %w", s.Name(), d.Date().Format(domain.DateLayout), err)
		}
		trades = append(trades, settled...)

		if i < last && !s.HasOpenPosition() && filter.Allow(d.Date()) {
			if err := s.Enter(d); err != nil {
				return nil, fmt.Errorf("backtest.Drive: %s enter %s: %w", s.Name(), d.Date().Format(domain.DateLayout), err)
			}
		}

		aux, err := s.Auxiliary(d)
		if err != nil {
			return nil, fmt.Errorf("backtest.Drive: %s auxiliary %s: %w", s.Name(), d.Date().Format(domain.DateLayout), err)
		}
		trades = append(trades, aux...)
	}

	closed, err := s.ForceClose(strategy.Day{Index: last - warmup, Bar: bars[last], Closes: closes})
	if err != nil {
		return nil, fmt.Errorf("backtest.Drive: %s force close: %w", s.Name(), err)
	}
	return append(trades, closed...), nil
}
