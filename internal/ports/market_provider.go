package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// BarProvider returns daily OHLCV bars for a symbol.
type BarProvider interface {
	// FetchBars returns bars with from <= date <= to, ascending by date.
	// An empty or unusable series is reported as domain.ErrDataUnavailable.
	FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error)
}
