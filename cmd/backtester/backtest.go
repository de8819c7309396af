package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alejandrodnm/optionlab/config"
	"github.com/alejandrodnm/optionlab/internal/application/backtest"
	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/ports"
)

// runBacktests runs the selected strategies and prints whatever completed.
// Without -sweep runs go one after another and the first failure stops the batch.
func runBacktests(ctx context.Context, cfg *config.Config, runner *backtest.Runner, out ports.Notifier, only string, sweep bool) error {
	selected, err := cfg.Enabled(only)
	if err != nil {
		return err
	}
	runCfgs := make([]backtest.RunConfig, len(selected))
	for i, s := range selected {
		runCfgs[i] = toRunConfig(cfg, s)
	}

	var runs []*domain.Run
	var runErr error
	if sweep {
		slog.Info("sweep starting", "runs", len(runCfgs), "workers", cfg.Backtest.Workers)
		runs, runErr = backtest.Sweep(ctx, runner, runCfgs, cfg.Backtest.Workers)
	} else {
		for _, rc := range runCfgs {
			run, err := runner.Run(ctx, rc)
			if err != nil {
				runErr = err
				break
			}
			runs = append(runs, run)
		}
	}

	if len(runs) > 0 {
		if err := out.Notify(ctx, runs); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	if runErr != nil && errors.Is(runErr, domain.ErrInvalidConfiguration) {
		slog.Error("fix the configuration and retry", "config_error", runErr)
	}
	return runErr
}
