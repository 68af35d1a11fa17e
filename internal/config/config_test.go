package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Validate())
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, cfg.Symbols)
	assert.Equal(t, 100000.0, cfg.StartCash)
	assert.Equal(t, 10, cfg.LearnEverySteps)
}

func TestValidate_NamesFields(t *testing.T) {
	cfg := Default()
	cfg.Symbols = nil
	cfg.StartCash = -5
	cfg.Risk.MaxRiskPerTrade = 0.9
	cfg.Ensemble.LearningRate = 0

	errs := cfg.Validate()
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], "symbols")
	assert.Contains(t, errs[1], "start_cash")
	assert.Contains(t, errs[2], "risk.max_risk_per_trade")
	assert.Contains(t, errs[3], "ensemble.learning_rate")
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
symbols: ["TSLA"]
start_cash: 25000
interval: "1h"
risk:
  max_risk_per_trade: 0.01
  stop_loss_pct: 0.05
  confidence_floor: 0.40
broker:
  slippage_bps: 2
  commission_bps: 1
strategy:
  momentum:
    fast_period: 5
    ref_spread_pct: 0.06
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"TSLA"}, cfg.Symbols)
	assert.Equal(t, 25000.0, cfg.StartCash)
	assert.Equal(t, "1h", cfg.Interval)
	assert.Equal(t, 0.01, cfg.Risk.MaxRiskPerTrade)
	assert.Equal(t, 0.40, cfg.Risk.ConfidenceFloor)
	assert.Equal(t, ParamMap{"fast_period": 5, "ref_spread_pct": 0.06}, cfg.Strategy["momentum"])
	// Untouched fields keep their defaults
	assert.Equal(t, "3mo", cfg.Period)
	assert.Equal(t, 10, cfg.LearnEverySteps)
}

func TestLoad_InvalidConfigNamesFileAndField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("start_cash: -100\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, err.Error(), "start_cash")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.yaml")
	cfg := Default()
	cfg.Symbols = []string{"NVDA", "AMD"}
	cfg.StartCash = 50000

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Symbols, loaded.Symbols)
	assert.Equal(t, cfg.StartCash, loaded.StartCash)
	assert.Equal(t, cfg.Risk, loaded.Risk)
}
