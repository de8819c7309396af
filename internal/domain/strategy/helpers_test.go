package strategy

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/pricing"
	"github.com/alejandrodnm/optionlab/internal/domain/strikes"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testEnv(est pricing.Estimator, increment float64) Env {
	return Env{
		Name:      "test",
		Symbol:    "TST",
		Estimator: est,
		Selector:  strikes.NewSelector(est, increment, 0.3),
		Vol:       domain.VolModel{Fixed: 0.2},
		Sizing:    domain.Sizing{Capital: 10000, PositionPct: 1},
	}
}

func series(n int, price func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price(i)
	}
	return out
}

// step runs the driver protocol over one bar per calendar day. opens may be nil.
func step(t *testing.T, s Strategy, opens, closes []float64, each func(i int)) []domain.Trade {
	t.Helper()
	var out []domain.Trade
	for i, c := range closes {
		open := c
		if opens != nil {
			open = opens[i]
		}
		d := Day{
			Index:  i,
			Bar:    domain.Bar{Date: start.AddDate(0, 0, i), Open: open, High: max(open, c), Low: min(open, c), Close: c},
			Closes: closes[:i+1],
		}
		trades, err := s.Settle(d)
		require.NoError(t, err)
		out = append(out, trades...)

		if !s.HasOpenPosition() {
			require.NoError(t, s.Enter(d))
		}

		trades, err = s.Auxiliary(d)
		require.NoError(t, err)
		out = append(out, trades...)

		if each != nil {
			each(i)
		}
		if i == len(closes)-1 {
			trades, err = s.ForceClose(d)
			require.NoError(t, err)
			out = append(out, trades...)
		}
	}
	return out
}

// brokenPricer prices like Black-Scholes until broken is set.
type brokenPricer struct {
	pricing.BlackScholes
	broken bool
}

func (p *brokenPricer) Estimate(in pricing.EstimateInput) (pricing.Estimate, error) {
	if p.broken {
		return pricing.Estimate{}, fmt.Errorf("broken pricer: %w", domain.ErrPricingDegenerate)
	}
	return p.BlackScholes.Estimate(in)
}
