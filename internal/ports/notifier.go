package ports

import (
	"context"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// TradeObserver is told about every trade of a finished run, in order.
type TradeObserver interface {
	OnTrade(ctx context.Context, run string, trade domain.Trade) error
}

// NoopObserver ignores trades.
type NoopObserver struct{}

// OnTrade implements TradeObserver.
func (NoopObserver) OnTrade(context.Context, string, domain.Trade) error { return nil }

// Notifier presents finished runs to the user.
type Notifier interface {
	// Notify prints a summary of each run. In the console implementation this is a table.
	Notify(ctx context.Context, runs []*domain.Run) error
}
