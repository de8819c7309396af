package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/optionlab/config"
	"github.com/alejandrodnm/optionlab/internal/adapters/marketdata"
	"github.com/alejandrodnm/optionlab/internal/adapters/notify"
	"github.com/alejandrodnm/optionlab/internal/adapters/storage"
	"github.com/alejandrodnm/optionlab/internal/application/backtest"
	"github.com/alejandrodnm/optionlab/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	only := flag.String("strategy", "", "run only the named strategy (even if disabled)")
	sweep := flag.Bool("sweep", false, "run all selected strategies in parallel")
	workers := flag.Int("workers", 0, "parallel runs for -sweep (overrides config, 0 = NumCPU)")
	collect := flag.Bool("collect", false, "download price history for every configured symbol and exit")
	importGEX := flag.String("import-gex", "", "import a GEX CSV (date,symbol,net_gex,...) and exit")
	history := flag.Bool("history", false, "print stored results and exit")
	limit := flag.Int("limit", 20, "rows for -history")
	runID := flag.String("run", "", "print the stored trades of a run and exit")
	trades := flag.Bool("trades", false, "print every trade as runs finish")
	noStore := flag.Bool("no-store", false, "do not persist results")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *workers > 0 {
		cfg.Backtest.Workers = *workers
	}
	setupLogger(cfg.Log)

	var store ports.Storage
	store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *history:
		rows, err := store.ListResults(ctx, *only, *limit)
		if err != nil {
			fatal("failed to list results", err)
		}
		console.PrintResults(rows)
		return
	case *runID != "":
		ts, err := store.ListTrades(ctx, *runID)
		if err != nil {
			fatal("failed to list trades", err)
		}
		console.PrintTrades(*runID, ts)
		return
	case *importGEX != "":
		if err := runImportGEX(ctx, store, *importGEX); err != nil {
			fatal("gex import failed", err)
		}
		return
	}

	yahoo := marketdata.NewYahooClient(cfg.Data.YahooBase, marketdata.WithRate(cfg.Data.RatePerSec))
	cached := marketdata.NewCachedProvider(store, yahoo)

	if *collect {
		if err := runCollect(ctx, cfg, cached); err != nil {
			fatal("collect failed", err)
		}
		return
	}

	var bars ports.BarProvider
	switch {
	case cfg.Data.Provider == "sqlite":
		bars = store
	case cfg.Data.UseCache():
		bars = cached
	default:
		bars = yahoo
	}

	var results ports.ResultStore = store
	if *noStore {
		results = nil
	}
	var observer ports.TradeObserver
	if *trades {
		observer = console
	}

	slog.Info("optionlab starting",
		"config", *configPath,
		"provider", cfg.Data.Provider,
		"strategy", *only,
		"sweep", *sweep,
		"store", !*noStore,
	)

	runner := backtest.NewRunner(backtest.DefaultRegistry(), bars, results, store, observer)
	if err := runBacktests(ctx, cfg, runner, console, *only, *sweep); err != nil {
		fatal("backtest failed", err)
	}
	slog.Info("optionlab stopped cleanly")
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// logs go to stderr so report tables on stdout stay clean
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
