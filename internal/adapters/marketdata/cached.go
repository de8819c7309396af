package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/ports"
)

// coverageSlack absorbs weekends and market holidays at the edges of a range.
const coverageSlack = 4 * 24 * time.Hour

// maxBarGap is the longest run of calendar days between two stored sessions
// that is still a weekend plus holidays. Anything longer is a hole in the cache.
const maxBarGap = 5 * 24 * time.Hour

// CachedProvider serves bars from the local store when it covers the
// requested range and otherwise fetches upstream, writing the result back.
type CachedProvider struct {
	store    ports.BarStore
	upstream ports.BarProvider
	now      func() time.Time
}

// NewCachedProvider wires a store in front of an upstream provider.
func NewCachedProvider(store ports.BarStore, upstream ports.BarProvider) *CachedProvider {
	return &CachedProvider{store: store, upstream: upstream, now: time.Now}
}

// FetchBars implements ports.BarProvider.
func (p *CachedProvider) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	covered, err := p.covers(ctx, symbol, from, to)
	if err != nil {
		slog.Warn("price cache unavailable, going upstream", "symbol", symbol, "err", err)
	}
	if covered {
		bars, err := p.store.FetchBars(ctx, symbol, from, to)
		switch {
		case err != nil:
			slog.Warn("price cache read failed, going upstream", "symbol", symbol, "err", err)
		case hasGap(bars):
			slog.Info("price cache has gaps, going upstream", "symbol", symbol, "bars", len(bars))
		default:
			slog.Debug("bars served from cache", "symbol", symbol, "bars", len(bars))
			return bars, nil
		}
	}

	bars, err := p.upstream.FetchBars(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("marketdata.CachedProvider.FetchBars: %w", err)
	}
	if err := p.store.SaveBars(ctx, symbol, bars); err != nil {
		slog.Warn("failed to cache bars", "symbol", symbol, "err", err)
	}
	return bars, nil
}

// Collect refreshes the store from upstream regardless of coverage and
// returns how many bars were written.
func (p *CachedProvider) Collect(ctx context.Context, symbol string, from, to time.Time) (int, error) {
	bars, err := p.upstream.FetchBars(ctx, symbol, from, to)
	if err != nil {
		return 0, fmt.Errorf("marketdata.Collect %s: %w", symbol, err)
	}
	if err := p.store.SaveBars(ctx, symbol, bars); err != nil {
		return 0, fmt.Errorf("marketdata.Collect %s: %w", symbol, err)
	}
	return len(bars), nil
}

func (p *CachedProvider) covers(ctx context.Context, symbol string, from, to time.Time) (bool, error) {
	first, last, ok, err := p.store.Coverage(ctx, symbol)
	if err != nil || !ok {
		return false, err
	}
	// a range ending today can only be covered up to the last close
	if today := domain.Day(p.now()); !to.Before(today) {
		to = today.AddDate(0, 0, -1)
	}
	return !first.After(domain.Day(from).Add(coverageSlack)) &&
		!last.Before(domain.Day(to).Add(-coverageSlack)), nil
}

func hasGap(bars []domain.Bar) bool {
	for i := 1; i < len(bars); i++ {
		if bars[i].Date.Sub(bars[i-1].Date) > maxBarGap {
			return true
		}
	}
	return false
}
