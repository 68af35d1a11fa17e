package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/equityrun/equityrun/internal/broker"
	"github.com/equityrun/equityrun/internal/ensemble"
	"github.com/equityrun/equityrun/internal/regime"
	"github.com/equityrun/equityrun/internal/risk"
)

// Config is the full run configuration, loaded once at startup and
// treated as immutable for the run.
type Config struct {
	Symbols   []string `yaml:"symbols"`
	StartCash float64  `yaml:"start_cash"`
	Period    string   `yaml:"period"`   // history span requested from the provider
	Interval  string   `yaml:"interval"` // bar interval requested from the provider

	Risk     risk.Config           `yaml:"risk"`
	Broker   broker.Config         `yaml:"broker"`
	Ensemble ensemble.Config       `yaml:"ensemble"`
	Regime   regime.DetectorConfig `yaml:"regime"`
	Strategy map[string]ParamMap   `yaml:"strategy"`

	LearnEverySteps int           `yaml:"learn_every_steps"` // Default: 10, ensemble update cadence
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`     // Default: 15s, bound on per-step data fetches

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Stream   StreamConfig   `yaml:"stream"`
}

// ParamMap carries strategy-specific tuning parameters
type ParamMap map[string]float64

// DatabaseConfig holds Postgres connection settings. An empty DSN runs
// the engine against the in-memory repository.
type DatabaseConfig struct {
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"` // Default: 5s
}

// RedisConfig holds quote cache settings. An empty address disables
// the cache layer.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	QuoteTTL time.Duration `yaml:"quote_ttl"` // Default: 15s
}

// HTTPConfig holds the metrics/health server settings
type HTTPConfig struct {
	Addr string `yaml:"addr"` // Default: ":8090", empty disables the server
}

// StreamConfig holds the optional websocket quote feed settings
type StreamConfig struct {
	URL string `yaml:"url"` // empty disables streaming quotes
}

// Default returns a runnable configuration with conservative settings
func Default() *Config {
	return &Config{
		Symbols:         []string{"AAPL", "MSFT", "GOOG"},
		StartCash:       100000.0,
		Period:          "3mo",
		Interval:        "1d",
		Risk:            risk.DefaultConfig(),
		Broker:          broker.Config{SlippageBps: 5, CommissionBps: 10, MinFee: 1.0},
		Ensemble:        ensemble.DefaultConfig(),
		Regime:          regime.DefaultDetectorConfig(),
		Strategy:        map[string]ParamMap{},
		LearnEverySteps: 10,
		FetchTimeout:    15 * time.Second,
		Database:        DatabaseConfig{Timeout: 5 * time.Second},
		Redis:           RedisConfig{QuoteTTL: 15 * time.Second},
		HTTP:            HTTPConfig{Addr: ":8090"},
	}
}

// Load reads and validates a YAML configuration file. Validation
// failures are fatal at startup and name the file and offending field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config %s: %s", path, errs[0])
	}
	return cfg, nil
}

// Validate returns every configuration problem found, naming fields
func (c *Config) Validate() []string {
	var errs []string

	if len(c.Symbols) == 0 {
		errs = append(errs, "symbols: at least one symbol is required")
	}
	if c.StartCash <= 0 {
		errs = append(errs, fmt.Sprintf("start_cash: must be positive, got %.2f", c.StartCash))
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade > 0.5 {
		errs = append(errs, fmt.Sprintf("risk.max_risk_per_trade: %.3f outside (0, 0.5]", c.Risk.MaxRiskPerTrade))
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 1 {
		errs = append(errs, fmt.Sprintf("risk.stop_loss_pct: %.3f outside (0, 1)", c.Risk.StopLossPct))
	}
	if c.Risk.ConfidenceFloor < 0 || c.Risk.ConfidenceFloor > 1 {
		errs = append(errs, fmt.Sprintf("risk.confidence_floor: %.3f outside [0, 1]", c.Risk.ConfidenceFloor))
	}
	if c.Broker.SlippageBps < 0 {
		errs = append(errs, fmt.Sprintf("broker.slippage_bps: must be non-negative, got %.1f", c.Broker.SlippageBps))
	}
	if c.Broker.CommissionBps < 0 {
		errs = append(errs, fmt.Sprintf("broker.commission_bps: must be non-negative, got %.1f", c.Broker.CommissionBps))
	}
	if c.Ensemble.LearningRate <= 0 {
		errs = append(errs, fmt.Sprintf("ensemble.learning_rate: must be positive, got %.3f", c.Ensemble.LearningRate))
	}
	if c.LearnEverySteps <= 0 {
		errs = append(errs, fmt.Sprintf("learn_every_steps: must be positive, got %d", c.LearnEverySteps))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, "fetch_timeout: must be positive")
	}

	return errs
}

// Save writes the configuration to a YAML file
func Save(c *Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
