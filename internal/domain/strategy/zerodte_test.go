package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/pricing"
)

func TestZeroDTE_OpensAtOpenSettlesAtClose(t *testing.T) {
	z, err := NewZeroDTE(testEnv(pricing.BlackScholes{}, 1), ZeroDTEParams{
		VerticalParams: VerticalParams{Sides: SidesPut, ShortOTMPct: 0.01, Width: 2},
	})
	require.NoError(t, err)

	opens := []float64{100, 100}
	closes := []float64{100.5, 98}
	var open []bool
	trades := step(t, z, opens, closes, func(int) { open = append(open, z.HasOpenPosition()) })
	require.Len(t, trades, 2)
	assert.Equal(t, []bool{false, false}, open)

	win := trades[0]
	assert.Equal(t, domain.ExitExpired, win.ExitReason)
	assert.Equal(t, 0, win.DurationDays)
	assert.Equal(t, 99.0, win.Legs[0].Strike)
	assert.Equal(t, 97.0, win.Legs[1].Strike)
	assert.Equal(t, domain.OutcomeExpiredOTM, win.Outcome)
	assert.True(t, win.Win)

	loss := trades[1]
	assert.Equal(t, domain.OutcomeBreachedPartial, loss.Outcome)
	assert.InDelta(t, (loss.Premium-1)*100*float64(loss.Contracts), loss.PnL, 1e-6)
}
