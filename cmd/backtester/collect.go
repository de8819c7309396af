package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/optionlab/config"
	"github.com/alejandrodnm/optionlab/internal/adapters/marketdata"
	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/ports"
)

// runCollect refreshes price history for every symbol the config references,
// including the volatility warmup before the start date.
func runCollect(ctx context.Context, cfg *config.Config, p *marketdata.CachedProvider) error {
	var errs []error
	for symbol, warmup := range collectPlan(cfg) {
		from := cfg.StartDate().AddDate(0, 0, -warmup)
		n, err := p.Collect(ctx, symbol, from, cfg.EndDate())
		if err != nil {
			slog.Error("collect failed", "symbol", symbol, "err", err)
			errs = append(errs, err)
			continue
		}
		slog.Info("price history stored", "symbol", symbol, "bars", n,
			"from", from.Format(domain.DateLayout), "to", cfg.EndDate().Format(domain.DateLayout))
	}
	return errors.Join(errs...)
}

// collectPlan maps each symbol to the largest warmup any of its strategies needs.
func collectPlan(cfg *config.Config) map[string]int {
	plan := make(map[string]int)
	for _, s := range cfg.Strategies {
		rc := toRunConfig(cfg, s)
		plan[rc.Symbol] = max(plan[rc.Symbol], rc.WarmupDays())
	}
	return plan
}

func runImportGEX(ctx context.Context, store ports.Storage, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	signals, err := parseGEX(f)
	if err != nil {
		return fmt.Errorf("parse %q: %w", path, err)
	}
	if err := store.SaveGEXSignals(ctx, signals); err != nil {
		return err
	}
	slog.Info("gex signals imported", "path", path, "rows", len(signals))
	return nil
}

// parseGEX reads a CSV with a header row. date, symbol and net_gex are
// required; zero_gamma, call_wall and put_wall are optional.
func parseGEX(r io.Reader) ([]domain.GEXSignal, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"date", "symbol", "net_gex"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("missing column %q", req)
		}
	}

	var out []domain.GEXSignal
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := time.Parse(domain.DateLayout, rec[col["date"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad date %q", line, rec[col["date"]])
		}
		g := domain.GEXSignal{Symbol: strings.ToUpper(rec[col["symbol"]]), Date: date}
		if g.NetGEX, err = strconv.ParseFloat(rec[col["net_gex"]], 64); err != nil {
			return nil, fmt.Errorf("line %d: bad net_gex %q", line, rec[col["net_gex"]])
		}
		for name, dst := range map[string]*float64{"zero_gamma": &g.ZeroGamma, "call_wall": &g.CallWall, "put_wall": &g.PutWall} {
			i, ok := col[name]
			if !ok || rec[i] == "" {
				continue
			}
			if *dst, err = strconv.ParseFloat(rec[i], 64); err != nil {
				return nil, fmt.Errorf("line %d: bad %s %q", line, name, rec[i])
			}
		}
		out = append(out, g)
	}
	return out, nil
}
