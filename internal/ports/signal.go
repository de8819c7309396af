package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

// EntrySignal gates entries with an external signal such as dealer gamma exposure.
// The filter is resolved once before a run so the simulation loop stays free of I/O.
type EntrySignal interface {
	EntryFilter(ctx context.Context, symbol string, from, to time.Time) (domain.EntryFilter, error)
}

// AlwaysEnter is the default signal: every day is eligible.
type AlwaysEnter struct{}

// EntryFilter implements EntrySignal.
func (AlwaysEnter) EntryFilter(context.Context, string, time.Time, time.Time) (domain.EntryFilter, error) {
	return domain.AllowAll{}, nil
}
