package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/optionlab/internal/domain"
	"github.com/alejandrodnm/optionlab/internal/domain/strategy"
)

// Config is the full backtester configuration.
type Config struct {
	Backtest   BacktestConfig   `yaml:"backtest"`
	Costs      CostsConfig      `yaml:"costs"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Strategies []StrategyConfig `yaml:"strategies"`
	Data       DataConfig       `yaml:"data"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// BacktestConfig holds the knobs shared by every strategy run.
type BacktestConfig struct {
	Symbol          string  `yaml:"symbol"`
	Start           string  `yaml:"start"` // YYYY-MM-DD
	End             string  `yaml:"end"`   // YYYY-MM-DD, empty means yesterday
	InitialCapital  float64 `yaml:"initial_capital"`
	PositionSizePct float64 `yaml:"position_size_pct"` // fraction of capital per position
	MaxContracts    int     `yaml:"max_contracts"`
	Workers         int     `yaml:"workers"` // parallel runs for -sweep
}

// CostsConfig holds transaction costs as fractions of notional.
type CostsConfig struct {
	CommissionPct float64 `yaml:"commission_pct"`
	SlippagePct   float64 `yaml:"slippage_pct"`
}

// PricingConfig controls premium estimation and strike selection.
type PricingConfig struct {
	Model           string  `yaml:"model"` // black_scholes | heuristic
	RiskFreeRate    float64 `yaml:"risk_free_rate"`
	Volatility      float64 `yaml:"volatility"` // fixed annualized vol; 0 uses historical volatility
	HVWindow        int     `yaml:"hv_window"`
	MinVolatility   float64 `yaml:"min_volatility"`
	StrikeIncrement float64 `yaml:"strike_increment"`
	StrikeRangePct  float64 `yaml:"strike_range_pct"`
}

// StrategyConfig is one named strategy run. Only the block matching Kind is read.
type StrategyConfig struct {
	Name         string         `yaml:"name"`
	Kind         string         `yaml:"kind"`
	Enabled      *bool          `yaml:"enabled"`
	Symbol       string         `yaml:"symbol"`        // overrides backtest.symbol
	PricingModel string         `yaml:"pricing_model"` // overrides pricing.model
	UseGEX       bool           `yaml:"use_gex"`
	Wheel        WheelConfig    `yaml:"wheel"`
	Spread       SpreadConfig   `yaml:"spread"`
	ZeroDTE      VerticalConfig `yaml:"zero_dte"`
	Diagonal     DiagonalConfig `yaml:"diagonal"`
}

// IsEnabled reports whether the strategy runs. Strategies are enabled unless
// explicitly disabled.
func (s StrategyConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// WheelConfig configures the cash-secured put / covered call wheel.
type WheelConfig struct {
	PutDelta     float64 `yaml:"put_delta"`
	PutOTMPct    float64 `yaml:"put_otm_pct"`
	PutDTE       int     `yaml:"put_dte"`
	CallDelta    float64 `yaml:"call_delta"`
	CallOTMPct   float64 `yaml:"call_otm_pct"`
	CallDTE      int     `yaml:"call_dte"`
	MaxCCCycles  int     `yaml:"max_cc_cycles"`
	CCMinGainPct float64 `yaml:"cc_min_gain_pct"`
}

// VerticalConfig configures the short strike and width of credit verticals.
type VerticalConfig struct {
	Sides       string  `yaml:"sides"` // put | call | both
	ShortDelta  float64 `yaml:"short_delta"`
	ShortOTMPct float64 `yaml:"short_otm_pct"`
	Width       float64 `yaml:"width"`
}

// SpreadConfig configures credit spreads and iron condors.
type SpreadConfig struct {
	VerticalConfig  `yaml:",inline"`
	DTE             int     `yaml:"dte"`
	HoldDays        int     `yaml:"hold_days"`
	ProfitTargetPct float64 `yaml:"profit_target_pct"`
	StopLossPct     float64 `yaml:"stop_loss_pct"`
}

// DiagonalConfig configures the short-premium leg with long hedges.
type DiagonalConfig struct {
	ShortDelta        float64 `yaml:"short_delta"`
	ShortOTMPct       float64 `yaml:"short_otm_pct"`
	ShortDTE          int     `yaml:"short_dte"`
	HedgeDelta        float64 `yaml:"hedge_delta"`
	HedgeOTMPct       float64 `yaml:"hedge_otm_pct"`
	LongDTE           int     `yaml:"long_dte"`
	HedgeIntervalDays int     `yaml:"hedge_interval_days"`
	MaxConcurrentLegs int     `yaml:"max_concurrent_legs"`
}

// DataConfig selects where bars come from.
type DataConfig struct {
	Provider   string  `yaml:"provider"` // yahoo | sqlite
	YahooBase  string  `yaml:"yahoo_base"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Cache      *bool   `yaml:"cache"` // keep fetched bars in SQLite; default true
}

// UseCache reports whether fetched bars are written back to SQLite.
func (d DataConfig) UseCache() bool {
	return d.Cache == nil || *d.Cache
}

// StorageConfig controls where data is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

var validKinds = map[string]bool{
	strategy.KindWheel:        true,
	strategy.KindCreditSpread: true,
	strategy.KindIronCondor:   true,
	strategy.KindZeroDTE:      true,
	strategy.KindDiagonal:     true,
}

// Load reads the YAML file and a .env file if present. Environment variables
// referenced as ${VAR} in the YAML are expanded; unknown keys are rejected.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StartDate returns the parsed backtest start.
func (c *Config) StartDate() time.Time {
	t, _ := time.Parse(domain.DateLayout, c.Backtest.Start)
	return t
}

// EndDate returns the parsed backtest end, or yesterday when unset.
func (c *Config) EndDate() time.Time {
	if c.Backtest.End == "" {
		return domain.Day(time.Now()).AddDate(0, 0, -1)
	}
	t, _ := time.Parse(domain.DateLayout, c.Backtest.End)
	return t
}

// Enabled returns the strategies that will run, optionally narrowed to one name.
func (c *Config) Enabled(name string) ([]StrategyConfig, error) {
	var out []StrategyConfig
	for _, s := range c.Strategies {
		if name != "" {
			if s.Name == name {
				return []StrategyConfig{s}, nil
			}
			continue
		}
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	if name != "" {
		return nil, domain.InvalidConfigf("no strategy named %q", name)
	}
	if len(out) == 0 {
		return nil, domain.InvalidConfigf("no enabled strategies")
	}
	return out, nil
}

// Validate checks what can be checked without building strategies.
func (c *Config) Validate() error {
	if _, err := time.Parse(domain.DateLayout, c.Backtest.Start); err != nil {
		return domain.InvalidConfigf("backtest.start %q is not YYYY-MM-DD", c.Backtest.Start)
	}
	if c.Backtest.End != "" {
		if _, err := time.Parse(domain.DateLayout, c.Backtest.End); err != nil {
			return domain.InvalidConfigf("backtest.end %q is not YYYY-MM-DD", c.Backtest.End)
		}
	}
	if !c.StartDate().Before(c.EndDate()) {
		return domain.InvalidConfigf("backtest.start must be before backtest.end")
	}
	if c.Backtest.InitialCapital <= 0 {
		return domain.InvalidConfigf("backtest.initial_capital must be > 0")
	}
	if len(c.Strategies) == 0 {
		return domain.InvalidConfigf("at least one strategy is required")
	}

	seen := make(map[string]bool, len(c.Strategies))
	for i, s := range c.Strategies {
		if s.Name == "" {
			return domain.InvalidConfigf("strategies[%d]: name required", i)
		}
		if seen[s.Name] {
			return domain.InvalidConfigf("strategies[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		if !validKinds[s.Kind] {
			return domain.InvalidConfigf("strategy %q: unknown kind %q", s.Name, s.Kind)
		}
		if s.Symbol == "" && c.Backtest.Symbol == "" {
			return domain.InvalidConfigf("strategy %q: no symbol and no backtest.symbol", s.Name)
		}
	}

	switch c.Data.Provider {
	case "yahoo", "sqlite":
	default:
		return domain.InvalidConfigf("data.provider must be yahoo or sqlite (got %q)", c.Data.Provider)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return domain.InvalidConfigf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}

// applyEnvOverrides replaces values with environment variables when present.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("OPTIONLAB_DB"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults fills in sensible values for anything left unset.
func setDefaults(cfg *Config) {
	if cfg.Backtest.PositionSizePct <= 0 {
		cfg.Backtest.PositionSizePct = 0.10
	}
	if cfg.Pricing.Model == "" {
		cfg.Pricing.Model = "black_scholes"
	}
	if cfg.Pricing.Volatility == 0 {
		if cfg.Pricing.HVWindow <= 0 {
			cfg.Pricing.HVWindow = 20
		}
		if cfg.Pricing.MinVolatility <= 0 {
			cfg.Pricing.MinVolatility = 0.10
		}
	}
	if cfg.Pricing.StrikeIncrement <= 0 {
		cfg.Pricing.StrikeIncrement = 5
	}
	if cfg.Pricing.StrikeRangePct <= 0 {
		cfg.Pricing.StrikeRangePct = 0.30
	}
	if cfg.Data.Provider == "" {
		cfg.Data.Provider = "yahoo"
	}
	if cfg.Data.RatePerSec <= 0 {
		cfg.Data.RatePerSec = 2
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "optionlab.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
