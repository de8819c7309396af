package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// SaveGEXSignals upserts gamma exposure readings.
func (s *SQLiteStorage) SaveGEXSignals(ctx context.Context, signals []domain.GEXSignal) error {
	if len(signals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveGEXSignals: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gex_signals (symbol, date, net_gex, zero_gamma, call_wall, put_wall)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			net_gex    = excluded.net_gex,
			zero_gamma = excluded.zero_gamma,
			call_wall  = excluded.call_wall,
			put_wall   = excluded.put_wall`)
	if err != nil {
		return fmt.Errorf("storage.SaveGEXSignals: prepare: %w", err)
	}
	defer stmt.Close()

	for _, g := range signals {
		if _, err := stmt.ExecContext(ctx,
			g.Symbol, g.Date.UTC().Format(domain.DateLayout),
			g.NetGEX, g.ZeroGamma, g.CallWall, g.PutWall,
		); err != nil {
			return fmt.Errorf("storage.SaveGEXSignals: upsert %s %s: %w", g.Symbol, g.Date.Format(domain.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveGEXSignals: commit: %w", err)
	}
	return nil
}

// EntryFilter implements ports.EntrySignal: entries are allowed on days whose
// stored reading favors premium selling. Days without a reading are blocked.
func (s *SQLiteStorage) EntryFilter(ctx context.Context, symbol string, from, to time.Time) (domain.EntryFilter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, net_gex FROM gex_signals
		WHERE symbol = ? AND date BETWEEN ? AND ?`,
		symbol, from.UTC().Format(domain.DateLayout), to.UTC().Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("storage.EntryFilter: query: %w", err)
	}
	defer rows.Close()

	allowed := domain.DateSet{}
	for rows.Next() {
		var g domain.GEXSignal
		var date string
		if err := rows.Scan(&date, &g.NetGEX); err != nil {
			return nil, fmt.Errorf("storage.EntryFilter: scan row: %w", err)
		}
		if g.FavorsSelling() {
			allowed[date] = true
		}
	}
	return allowed, rows.Err()
}
