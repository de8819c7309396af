package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/optionlab/internal/domain"
)

func TestPrice_PutCallParity(t *testing.T) {
	cases := []Inputs{
		{Spot: 100, Strike: 100, T: 0.5, Vol: 0.2, Rate: 0.05},
		{Spot: 450, Strike: 420, T: 30.0 / 365, Vol: 0.18, Rate: 0.045},
		{Spot: 50, Strike: 65, T: 2, Vol: 0.6, Rate: 0.01},
	}
	for _, in := range cases {
		in.Type = Call
		c, err := Price(in)
		require.NoError(t, err)
		in.Type = Put
		p, err := Price(in)
		require.NoError(t, err)

		parity := in.Spot - in.Strike*math.Exp(-in.Rate*in.T)
		assert.InDelta(t, parity, c.Price-p.Price, 1e-9)
		assert.InDelta(t, 1.0, c.Delta-p.Delta, 1e-12)
		assert.InDelta(t, c.Gamma, p.Gamma, 1e-12)
		assert.InDelta(t, c.Vega, p.Vega, 1e-12)
	}
}

func TestPrice_KnownValue(t *testing.T) {
	// Hull: S=42 K=40 r=10% σ=20% T=0.5 → call 4.76, put 0.81
	c, err := Price(Inputs{Spot: 42, Strike: 40, T: 0.5, Vol: 0.2, Rate: 0.1, Type: Call})
	require.NoError(t, err)
	assert.InDelta(t, 4.76, c.Price, 0.01)

	p, err := Price(Inputs{Spot: 42, Strike: 40, T: 0.5, Vol: 0.2, Rate: 0.1, Type: Put})
	require.NoError(t, err)
	assert.InDelta(t, 0.81, p.Price, 0.01)
	assert.Less(t, p.Delta, 0.0)
	assert.Less(t, p.Theta, 0.0)
}

func TestPrice_ConvergesToIntrinsic(t *testing.T) {
	for _, typ := range []OptionType{Call, Put} {
		for _, strike := range []float64{90, 110} {
			in := Inputs{Spot: 100, Strike: strike, Vol: 0.25, Rate: 0.03, Type: typ}
			in.T = 1e-8
			near, err := Price(in)
			require.NoError(t, err)
			in.T = 0
			at, err := Price(in)
			require.NoError(t, err)

			assert.InDelta(t, Intrinsic(typ, 100, strike), at.Price, 1e-12)
			assert.InDelta(t, at.Price, near.Price, 1e-4)
		}
	}
}

func TestPrice_ExpiryGreeks(t *testing.T) {
	q, err := Price(Inputs{Spot: 100, Strike: 90, T: 0, Vol: 0.2, Type: Call})
	require.NoError(t, err)
	assert.Equal(t, Quote{Price: 10, Delta: 1}, q)

	q, err = Price(Inputs{Spot: 100, Strike: 90, T: 0, Vol: 0.2, Type: Put})
	require.NoError(t, err)
	assert.Equal(t, Quote{}, q)

	q, err = Price(Inputs{Spot: 80, Strike: 90, T: 0, Vol: 0.2, Type: Put})
	require.NoError(t, err)
	assert.Equal(t, -1.0, q.Delta)
}

func TestPrice_Degenerate(t *testing.T) {
	bad := []Inputs{
		{Spot: 100, Strike: 100, T: 0.1, Vol: 0, Type: Call},
		{Spot: 100, Strike: 100, T: 0.1, Vol: -0.2, Type: Put},
		{Spot: 100, Strike: 100, T: -0.1, Vol: 0.2, Type: Put},
		{Spot: 0, Strike: 100, T: 0.1, Vol: 0.2, Type: Call},
		{Spot: 100, Strike: -5, T: 0.1, Vol: 0.2, Type: Call},
		{Spot: 100, Strike: 100, T: 0.1, Vol: math.NaN(), Type: Call},
		{Spot: 100, Strike: 100, T: 0.1, Vol: 0.2, Type: "straddle"},
	}
	for _, in := range bad {
		q, err := Price(in)
		assert.ErrorIs(t, err, domain.ErrPricingDegenerate)
		assert.False(t, math.IsNaN(q.Price))
	}
}

func TestNormCDF(t *testing.T) {
	assert.InDelta(t, 0.5, NormCDF(0), 1e-12)
	assert.InDelta(t, 0.975, NormCDF(1.96), 1e-3)
	assert.InDelta(t, 1.0, NormCDF(3)+NormCDF(-3), 1e-12)
	assert.InDelta(t, 0.39894, NormPDF(0), 1e-5)
}
