package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// CostModel charges commission and slippage as fractions of each leg's notional,
// on both the opening and the closing side (0.001 = 0.1%).
type CostModel struct {
	CommissionPct float64
	SlippagePct   float64
}

// Costs are the transaction costs attributed to one trade, in dollars.
type Costs struct {
	Commission float64
	Slippage   float64
}

// Total returns commission plus slippage.
func (c Costs) Total() float64 {
	return c.Commission + c.Slippage
}

// Apply computes costs over a set of leg notionals. Each side is rounded to the
// cent so totals stay reproducible across runs.
func (m CostModel) Apply(notionals ...float64) Costs {
	commission := decimal.Zero
	slippage := decimal.Zero
	cpct := decimal.NewFromFloat(m.CommissionPct)
	spct := decimal.NewFromFloat(m.SlippagePct)

	for _, n := range notionals {
		if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			continue
		}
		notional := decimal.NewFromFloat(math.Abs(n))
		commission = commission.Add(notional.Mul(cpct).Round(2))
		slippage = slippage.Add(notional.Mul(spct).Round(2))
	}

	return Costs{
		Commission: commission.InexactFloat64(),
		Slippage:   slippage.InexactFloat64(),
	}
}

// Validate rejects negative cost fractions.
func (m CostModel) Validate() error {
	if m.CommissionPct < 0 || m.SlippagePct < 0 {
		return InvalidConfigf("commission and slippage must be >= 0")
	}
	return nil
}
