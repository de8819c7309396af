package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// Sweep runs independent configs in parallel. Each run builds its own strategy,
// so runs share nothing but the Runner's dependencies. A failed run is logged and
// reported in the joined error; the other runs still complete. Results keep the
// order of cfgs with failed runs left out.
//
// If workers <= 0 it uses runtime.NumCPU().
func Sweep(ctx context.Context, r *Runner, cfgs []RunConfig, workers int) ([]*domain.Run, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	runs := make([]*domain.Run, len(cfgs))
	errs := make([]error, len(cfgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cfg := range cfgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			run, err := r.Run(gctx, cfg)
			if err != nil {
				slog.Warn("sweep run failed", "strategy", cfg.Name, "err", err)
				errs[i] = fmt.Errorf("%s: %w", cfg.Name, err)
				return nil
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backtest.Sweep: %w", err)
	}

	out := make([]*domain.Run, 0, len(runs))
	for _, run := range runs {
		if run != nil {
			out = append(out, run)
		}
	}
	slog.Debug("sweep complete", "runs", len(cfgs), "succeeded", len(out), "workers", workers)
	return out, errors.Join(errs...)
}
