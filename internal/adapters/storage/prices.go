package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// SaveBars upserts daily bars for a symbol in one transaction.
func (s *SQLiteStorage) SaveBars(ctx context.Context, symbol string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveBars: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_history (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open   = excluded.open,
			high   = excluded.high,
			low    = excluded.low,
			close  = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("storage.SaveBars: prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			symbol, b.Date.UTC().Format(domain.DateLayout),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return fmt.Errorf("storage.SaveBars: upsert %s %s: %w", symbol, b.Date.Format(domain.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveBars: commit: %w", err)
	}
	return nil
}

// FetchBars implements ports.BarProvider from the local price history.
func (s *SQLiteStorage) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM price_history
		WHERE symbol = ? AND date BETWEEN ? AND ?
		ORDER BY date`,
		symbol, from.UTC().Format(domain.DateLayout), to.UTC().Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("storage.FetchBars: query: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var date string
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("storage.FetchBars: scan row: %w", err)
		}
		b.Date, err = time.Parse(domain.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("storage.FetchBars: bad date %q: %w", date, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.FetchBars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("storage.FetchBars: no history for %s between %s and %s: %w",
			symbol, from.Format(domain.DateLayout), to.Format(domain.DateLayout), domain.ErrDataUnavailable)
	}
	return bars, nil
}

// Coverage returns the first and last stored day for a symbol.
func (s *SQLiteStorage) Coverage(ctx context.Context, symbol string) (first, last time.Time, ok bool, err error) {
	var lo, hi sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(date), MAX(date) FROM price_history WHERE symbol = ?`, symbol,
	).Scan(&lo, &hi); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("storage.Coverage: %w", err)
	}
	if !lo.Valid || !hi.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	first, _ = time.Parse(domain.DateLayout, lo.String)
	last, _ = time.Parse(domain.DateLayout, hi.String)
	return first, last, true, nil
}
