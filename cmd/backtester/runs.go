package main

import (
	"strings"

	"github.com/alejandrodnm/optionlab/config"
	"github.com/alejandrodnm/optionlab/internal/application/backtest"
	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/strategy"
)

// toRunConfig merges the shared backtest knobs with one strategy entry.
func toRunConfig(cfg *config.Config, s config.StrategyConfig) backtest.RunConfig {
	symbol := s.Symbol
	if symbol == "" {
		symbol = cfg.Backtest.Symbol
	}
	model := s.PricingModel
	if model == "" {
		model = cfg.Pricing.Model
	}

	return backtest.RunConfig{
		Name:           s.Name,
		Kind:           s.Kind,
		Symbol:         strings.ToUpper(symbol),
		Start:          cfg.StartDate(),
		End:            cfg.EndDate(),
		InitialCapital: cfg.Backtest.InitialCapital,
		PositionPct:    cfg.Backtest.PositionSizePct,
		MaxContracts:   cfg.Backtest.MaxContracts,
		Costs: domain.CostModel{
			CommissionPct: cfg.Costs.CommissionPct,
			SlippagePct:   cfg.Costs.SlippagePct,
		},
		PricingModel: model,
		RiskFreeRate: cfg.Pricing.RiskFreeRate,
		Vol: domain.VolModel{
			Fixed:  cfg.Pricing.Volatility,
			Window: cfg.Pricing.HVWindow,
			Floor:  cfg.Pricing.MinVolatility,
		},
		StrikeIncrement: cfg.Pricing.StrikeIncrement,
		StrikeRangePct:  cfg.Pricing.StrikeRangePct,
		UseEntrySignal:  s.UseGEX,

		Wheel: strategy.WheelParams{
			PutDelta:     s.Wheel.PutDelta,
			PutOTMPct:    s.Wheel.PutOTMPct,
			PutDTE:       s.Wheel.PutDTE,
			CallDelta:    s.Wheel.CallDelta,
			CallOTMPct:   s.Wheel.CallOTMPct,
			CallDTE:      s.Wheel.CallDTE,
			MaxCCCycles:  s.Wheel.MaxCCCycles,
			CCMinGainPct: s.Wheel.CCMinGainPct,
		},
		Spread: strategy.SpreadParams{
			VerticalParams:  vertical(s.Spread.VerticalConfig),
			DTE:             s.Spread.DTE,
			HoldDays:        s.Spread.HoldDays,
			ProfitTargetPct: s.Spread.ProfitTargetPct,
			StopLossPct:     s.Spread.StopLossPct,
		},
		ZeroDTE: strategy.ZeroDTEParams{VerticalParams: vertical(s.ZeroDTE)},
		Diagonal: strategy.DiagonalParams{
			ShortDelta:        s.Diagonal.ShortDelta,
			ShortOTMPct:       s.Diagonal.ShortOTMPct,
			ShortDTE:          s.Diagonal.ShortDTE,
			HedgeDelta:        s.Diagonal.HedgeDelta,
			HedgeOTMPct:       s.Diagonal.HedgeOTMPct,
			LongDTE:           s.Diagonal.LongDTE,
			HedgeIntervalDays: s.Diagonal.HedgeIntervalDays,
			MaxConcurrentLegs: s.Diagonal.MaxConcurrentLegs,
		},
	}
}

func vertical(v config.VerticalConfig) strategy.VerticalParams {
	sides := strategy.Sides(strings.ToLower(v.Sides))
	if sides == "" {
		sides = strategy.SidesPut
	}
	return strategy.VerticalParams{
		Sides:       sides,
		ShortDelta:  v.ShortDelta,
		ShortOTMPct: v.ShortOTMPct,
		Width:       v.Width,
	}
}
