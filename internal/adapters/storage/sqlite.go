package storage

// sqlite.go — one database for everything a backtest reads or writes.
//
//   - backtest_results: one row per run (the flat ResultRow).
//   - backtest_trades / backtest_legs: every trade of a run and its legs.
//   - price_history: daily bars cached from the market data provider.
//   - gex_signals: imported dealer gamma exposure used as an entry filter.
//
// A run is written in a single transaction so a crash never leaves a result
// row without its trades.

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
    run_id                  TEXT PRIMARY KEY,
    strategy_name           TEXT    NOT NULL,
    symbol                  TEXT    NOT NULL,
    start_date              TEXT    NOT NULL,
    end_date                TEXT    NOT NULL,
    total_trades            INTEGER NOT NULL DEFAULT 0,
    winning_trades          INTEGER NOT NULL DEFAULT 0,
    losing_trades           INTEGER NOT NULL DEFAULT 0,
    win_rate                REAL    NOT NULL DEFAULT 0,
    avg_win_pct             REAL    NOT NULL DEFAULT 0,
    avg_loss_pct            REAL    NOT NULL DEFAULT 0,
    expectancy_pct          REAL    NOT NULL DEFAULT 0,
    total_return_pct        REAL    NOT NULL DEFAULT 0,
    max_drawdown_pct        REAL    NOT NULL DEFAULT 0,
    sharpe_ratio            REAL    NOT NULL DEFAULT 0,
    profit_factor           REAL,
    avg_trade_duration_days REAL    NOT NULL DEFAULT 0,
    created_at              TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_trades (
    id              TEXT PRIMARY KEY,
    run_id          TEXT    NOT NULL REFERENCES backtest_results(run_id),
    seq             INTEGER NOT NULL,
    strategy_name   TEXT    NOT NULL,
    symbol          TEXT    NOT NULL,
    entry_date      TEXT    NOT NULL,
    exit_date       TEXT    NOT NULL,
    direction       TEXT    NOT NULL,
    contracts       INTEGER NOT NULL,
    premium         REAL    NOT NULL,
    capital_at_risk REAL    NOT NULL,
    gross_pnl       REAL    NOT NULL,
    commission      REAL    NOT NULL DEFAULT 0,
    slippage        REAL    NOT NULL DEFAULT 0,
    pnl             REAL    NOT NULL,
    pnl_pct         REAL    NOT NULL,
    win             INTEGER NOT NULL,
    duration_days   INTEGER NOT NULL,
    exit_reason     TEXT    NOT NULL,
    outcome         TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_legs (
    trade_id    TEXT    NOT NULL REFERENCES backtest_trades(id),
    seq         INTEGER NOT NULL,
    kind        TEXT    NOT NULL,
    side        TEXT    NOT NULL,
    strike      REAL    NOT NULL DEFAULT 0,
    expiration  TEXT,
    open_price  REAL    NOT NULL,
    close_price REAL    NOT NULL,
    quantity    INTEGER NOT NULL,
    outcome     TEXT    NOT NULL,
    PRIMARY KEY (trade_id, seq)
);

CREATE TABLE IF NOT EXISTS price_history (
    symbol TEXT NOT NULL,
    date   TEXT NOT NULL,
    open   REAL NOT NULL,
    high   REAL NOT NULL,
    low    REAL NOT NULL,
    close  REAL NOT NULL,
    volume REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS gex_signals (
    symbol     TEXT NOT NULL,
    date       TEXT NOT NULL,
    net_gex    REAL NOT NULL,
    zero_gamma REAL NOT NULL DEFAULT 0,
    call_wall  REAL NOT NULL DEFAULT 0,
    put_wall   REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (symbol, date)
);

CREATE INDEX IF NOT EXISTS idx_results_strategy ON backtest_results(strategy_name);
CREATE INDEX IF NOT EXISTS idx_results_created  ON backtest_results(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_run       ON backtest_trades(run_id, seq);
`

// SQLiteStorage implements ports.Storage using SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at path and applies the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// SaveRun persists the result row, the trades and their legs in one transaction.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run domain.Run) error {
	row := run.Results.Row(run.ID, run.FinishedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_results
			(run_id, strategy_name, symbol, start_date, end_date,
			 total_trades, winning_trades, losing_trades, win_rate,
			 avg_win_pct, avg_loss_pct, expectancy_pct, total_return_pct,
			 max_drawdown_pct, sharpe_ratio, profit_factor,
			 avg_trade_duration_days, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.StrategyName, row.Symbol,
		row.StartDate.Format(domain.DateLayout), row.EndDate.Format(domain.DateLayout),
		row.TotalTrades, row.WinningTrades, row.LosingTrades, finite(row.WinRate),
		finite(row.AvgWinPct), finite(row.AvgLossPct), finite(row.ExpectancyPct), finite(row.TotalReturnPct),
		finite(row.MaxDrawdownPct), finite(row.SharpeRatio), row.ProfitFactor,
		finite(row.AvgTradeDurationDays), row.CreatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert result %s: %w", run.ID, err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades
			(id, run_id, seq, strategy_name, symbol, entry_date, exit_date, direction,
			 contracts, premium, capital_at_risk, gross_pnl, commission, slippage,
			 pnl, pnl_pct, win, duration_days, exit_reason, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare trades: %w", err)
	}
	defer tradeStmt.Close()

	legStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_legs
			(trade_id, seq, kind, side, strike, expiration, open_price, close_price, quantity, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare legs: %w", err)
	}
	defer legStmt.Close()

	for i, t := range run.Trades {
		win := 0
		if t.Win {
			win = 1
		}
		if _, err := tradeStmt.ExecContext(ctx,
			t.ID, run.ID, i, t.Strategy, t.Symbol,
			t.EntryDate.Format(domain.DateLayout), t.ExitDate.Format(domain.DateLayout), string(t.Direction),
			t.Contracts, t.Premium, t.CapitalAtRisk, t.GrossPnL, t.Commission, t.Slippage,
			t.PnL, t.PnLPct, win, t.DurationDays, string(t.ExitReason), string(t.Outcome),
		); err != nil {
			return fmt.Errorf("storage.SaveRun: insert trade %s: %w", t.ID, err)
		}

		for j, l := range t.Legs {
			var exp *string
			if !l.Expiration.IsZero() {
				e := l.Expiration.Format(domain.DateLayout)
				exp = &e
			}
			if _, err := legStmt.ExecContext(ctx,
				t.ID, j, string(l.Kind), string(l.Side), l.Strike, exp,
				l.OpenPrice, l.ClosePrice, l.Quantity, string(l.Outcome),
			); err != nil {
				return fmt.Errorf("storage.SaveRun: insert leg %s/%d: %w", t.ID, j, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return nil
}

// ListResults returns result rows newest first. An empty strategy lists all;
// limit <= 0 means no limit.
func (s *SQLiteStorage) ListResults(ctx context.Context, strategy string, limit int) ([]domain.ResultRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, strategy_name, symbol, start_date, end_date,
		       total_trades, winning_trades, losing_trades, win_rate,
		       avg_win_pct, avg_loss_pct, expectancy_pct, total_return_pct,
		       max_drawdown_pct, sharpe_ratio, profit_factor,
		       avg_trade_duration_days, created_at
		FROM backtest_results
		WHERE (? = '' OR strategy_name = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, strategy, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListResults: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ResultRow
	for rows.Next() {
		var r domain.ResultRow
		var start, end, created string
		var pf sql.NullFloat64
		if err := rows.Scan(
			&r.RunID, &r.StrategyName, &r.Symbol, &start, &end,
			&r.TotalTrades, &r.WinningTrades, &r.LosingTrades, &r.WinRate,
			&r.AvgWinPct, &r.AvgLossPct, &r.ExpectancyPct, &r.TotalReturnPct,
			&r.MaxDrawdownPct, &r.SharpeRatio, &pf,
			&r.AvgTradeDurationDays, &created,
		); err != nil {
			return nil, fmt.Errorf("storage.ListResults: scan row: %w", err)
		}
		r.StartDate, _ = time.Parse(domain.DateLayout, start)
		r.EndDate, _ = time.Parse(domain.DateLayout, end)
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		if pf.Valid {
			v := pf.Float64
			r.ProfitFactor = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTrades returns the trades of a run in simulation order, legs included.
func (s *SQLiteStorage) ListTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy_name, symbol, entry_date, exit_date, direction,
		       contracts, premium, capital_at_risk, gross_pnl, commission, slippage,
		       pnl, pnl_pct, win, duration_days, exit_reason, outcome
		FROM backtest_trades
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListTrades: query: %w", err)
	}

	var trades []domain.Trade
	index := make(map[string]int)
	for rows.Next() {
		var t domain.Trade
		var entry, exit, direction, reason, outcome string
		var win int
		if err := rows.Scan(
			&t.ID, &t.Strategy, &t.Symbol, &entry, &exit, &direction,
			&t.Contracts, &t.Premium, &t.CapitalAtRisk, &t.GrossPnL, &t.Commission, &t.Slippage,
			&t.PnL, &t.PnLPct, &win, &t.DurationDays, &reason, &outcome,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage.ListTrades: scan trade: %w", err)
		}
		t.EntryDate, _ = time.Parse(domain.DateLayout, entry)
		t.ExitDate, _ = time.Parse(domain.DateLayout, exit)
		t.Direction = domain.Direction(direction)
		t.ExitReason = domain.ExitReason(reason)
		t.Outcome = domain.Outcome(outcome)
		t.Win = win == 1
		index[t.ID] = len(trades)
		trades = append(trades, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.ListTrades: %w", err)
	}

	legRows, err := s.db.QueryContext(ctx, `
		SELECT l.trade_id, l.kind, l.side, l.strike, l.expiration, l.open_price, l.close_price, l.quantity, l.outcome
		FROM backtest_legs l
		JOIN backtest_trades t ON t.id = l.trade_id
		WHERE t.run_id = ?
		ORDER BY t.seq, l.seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListTrades: query legs: %w", err)
	}
	defer legRows.Close()

	for legRows.Next() {
		var tradeID, kind, side, outcome string
		var exp sql.NullString
		var l domain.Leg
		if err := legRows.Scan(&tradeID, &kind, &side, &l.Strike, &exp, &l.OpenPrice, &l.ClosePrice, &l.Quantity, &outcome); err != nil {
			return nil, fmt.Errorf("storage.ListTrades: scan leg: %w", err)
		}
		l.Kind = domain.LegKind(kind)
		l.Side = domain.Side(side)
		l.Outcome = domain.Outcome(outcome)
		if exp.Valid {
			l.Expiration, _ = time.Parse(domain.DateLayout, exp.String)
		}
		if i, ok := index[tradeID]; ok {
			trades[i].Legs = append(trades[i].Legs, l)
		}
	}
	return trades, legRows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// finite maps NaN and ±Inf to 0 so REAL columns never receive them.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
