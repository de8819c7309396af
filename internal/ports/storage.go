package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// ResultStore persists completed runs.
type ResultStore interface {
	// SaveRun writes the result row and every trade of a run atomically.
	SaveRun(ctx context.Context, run domain.Run) error

	// ListResults returns stored result rows, newest first, optionally filtered by strategy.
	ListResults(ctx context.Context, strategy string, limit int) ([]domain.ResultRow, error)
}

// BarStore is the local price-history cache.
type BarStore interface {
	BarProvider

	// SaveBars upserts bars for a symbol.
	SaveBars(ctx context.Context, symbol string, bars []domain.Bar) error

	// Coverage returns the first and last stored day for a symbol; ok is false when none.
	Coverage(ctx context.Context, symbol string) (first, last time.Time, ok bool, err error)
}

// Storage is the full persistence surface of the SQLite adapter.
type Storage interface {
	ResultStore
	BarStore
	EntrySignal

	// ListTrades returns the stored trades of one run in entry order.
	ListTrades(ctx context.Context, runID string) ([]domain.Trade, error)

	// SaveGEXSignals upserts daily gamma-exposure readings.
	SaveGEXSignals(ctx context.Context, signals []domain.GEXSignal) error

	// Close releases the underlying database.
	Close() error
}
