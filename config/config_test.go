package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/optionlab/config"
	"github.com/alejandrodnm/optionlab/internal/domain"
)

const sample = `
backtest:
  symbol: SPY
  start: 2023-01-03
  end: 2024-12-31
  initial_capital: 50000
costs:
  commission_pct: 0.001
strategies:
  - name: spy-wheel
    kind: wheel
    wheel:
      put_delta: 0.30
      put_dte: 30
      call_delta: 0.30
      call_dte: 30
  - name: qqq-condor
    kind: iron_condor
    symbol: QQQ
    enabled: false
    spread:
      short_delta: 0.16
      width: 10
      dte: 45
      profit_target_pct: 0.5
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "SPY", cfg.Backtest.Symbol)
	assert.Equal(t, time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), cfg.StartDate())
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), cfg.EndDate())
	assert.InDelta(t, 0.10, cfg.Backtest.PositionSizePct, 1e-12)
	assert.Equal(t, "black_scholes", cfg.Pricing.Model)
	assert.Equal(t, 20, cfg.Pricing.HVWindow)
	assert.InDelta(t, 0.10, cfg.Pricing.MinVolatility, 1e-12)
	assert.Equal(t, 5.0, cfg.Pricing.StrikeIncrement)
	assert.Equal(t, "yahoo", cfg.Data.Provider)
	assert.True(t, cfg.Data.UseCache())
	assert.Equal(t, "optionlab.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	require.Len(t, cfg.Strategies, 2)
	condor := cfg.Strategies[1]
	assert.Equal(t, 10.0, condor.Spread.Width)
	assert.Equal(t, 0.16, condor.Spread.ShortDelta)
	assert.Equal(t, 45, condor.Spread.DTE)
	assert.False(t, condor.IsEnabled())
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := config.Parse([]byte(sample + "\nbogus: 1\n"))
	require.Error(t, err)
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("BT_SYMBOL", "IWM")
	cfg, err := config.Parse([]byte(`
backtest:
  symbol: ${BT_SYMBOL}
  start: 2024-01-02
  end: 2024-06-28
  initial_capital: 10000
strategies:
  - name: w
    kind: wheel
`))
	require.NoError(t, err)
	assert.Equal(t, "IWM", cfg.Backtest.Symbol)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("OPTIONLAB_DB", ":memory:")

	cfg, err := config.Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad start": `
backtest: {symbol: SPY, start: 01/02/2024, end: 2024-06-28, initial_capital: 1}
strategies: [{name: w, kind: wheel}]`,
		"inverted dates": `
backtest: {symbol: SPY, start: 2024-06-28, end: 2024-01-02, initial_capital: 1}
strategies: [{name: w, kind: wheel}]`,
		"no capital": `
backtest: {symbol: SPY, start: 2024-01-02, end: 2024-06-28}
strategies: [{name: w, kind: wheel}]`,
		"no strategies": `
backtest: {symbol: SPY, start: 2024-01-02, end: 2024-06-28, initial_capital: 1}`,
		"unknown kind": `
backtest: {symbol: SPY, start: 2024-01-02, end: 2024-06-28, initial_capital: 1}
strategies: [{name: w, kind: butterfly}]`,
		"duplicate name": `
backtest: {symbol: SPY, start: 2024-01-02, end: 2024-06-28, initial_capital: 1}
strategies: [{name: w, kind: wheel}, {name: w, kind: diagonal}]`,
		"no symbol": `
backtest: {start: 2024-01-02, end: 2024-06-28, initial_capital: 1}
strategies: [{name: w, kind: wheel}]`,
		"bad provider": `
backtest: {symbol: SPY, start: 2024-01-02, end: 2024-06-28, initial_capital: 1}
strategies: [{name: w, kind: wheel}]
data: {provider: bloomberg}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}

func TestConfig_Enabled(t *testing.T) {
	cfg, err := config.Parse([]byte(sample))
	require.NoError(t, err)

	all, err := cfg.Enabled("")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "spy-wheel", all[0].Name)

	// naming a disabled strategy runs it anyway
	one, err := cfg.Enabled("qqq-condor")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "QQQ", one[0].Symbol)

	_, err = cfg.Enabled("missing")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Strategies, 2)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
