package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the backtest core. Callers wrap them with context and
// match with errors.Is.
var (
	// ErrDataUnavailable means historical data could not be obtained or is unusable.
	// A run never substitutes synthetic data for it.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInvalidConfiguration means a run was configured with nonsensical parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrPricingDegenerate means the pricer received inputs it cannot price
	// (non-positive volatility, negative time, non-positive spot or strike).
	ErrPricingDegenerate = errors.New("pricing degenerate")
)

// InvalidConfigf builds an ErrInvalidConfiguration error with a formatted reason.
func InvalidConfigf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfiguration}, args...)...)
}
