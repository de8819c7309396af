package domain

import "math"

// Sizing converts capital into a contract count.
type Sizing struct {
	Capital      float64
	PositionPct  float64 // fraction of capital committed to one position
	MaxContracts int     // 0 = unlimited
}

// Contracts returns how many contracts fit the allocation given the capital a
// single contract puts at risk. Zero means the position cannot be afforded.
func (s Sizing) Contracts(riskPerContract float64) int {
	if riskPerContract <= 0 || s.Capital <= 0 || s.PositionPct <= 0 {
		return 0
	}
	n := int(math.Floor(s.Capital * s.PositionPct / riskPerContract))
	if s.MaxContracts > 0 && n > s.MaxContracts {
		n = s.MaxContracts
	}
	return max(n, 0)
}

// Validate checks sizing knobs.
func (s Sizing) Validate() error {
	if s.Capital <= 0 {
		return InvalidConfigf("initial capital must be > 0 (got %.2f)", s.Capital)
	}
	if s.PositionPct <= 0 || s.PositionPct > 1 {
		return InvalidConfigf("position pct must be in (0,1] (got %.4f)", s.PositionPct)
	}
	if s.MaxContracts < 0 {
		return InvalidConfigf("max contracts must be >= 0")
	}
	return nil
}
