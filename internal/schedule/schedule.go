package schedule

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds step timing settings
type Config struct {
	BarInterval     time.Duration `yaml:"bar_interval"`      // Default: 1m, step cadence during market hours
	OffHoursPeriod  time.Duration `yaml:"off_hours_period"`  // Default: 0 (sleep until next open); >0 = fixed interval
	MarketHoursOnly bool          `yaml:"market_hours_only"` // Default: true
}

// DefaultConfig returns minute-bar stepping during market hours only
func DefaultConfig() Config {
	return Config{
		BarInterval:     time.Minute,
		MarketHoursOnly: true,
	}
}

// LoadConfig reads schedule settings from a YAML file
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read schedule config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse schedule config: %w", err)
	}
	if cfg.BarInterval <= 0 {
		cfg.BarInterval = time.Minute
	}
	return cfg, nil
}

// Schedule answers "when is the next step due" for the engine loop,
// decoupled from any UI. The engine sleeps cooperatively between steps
// rather than polling.
type Schedule struct {
	config Config
}

// New creates a schedule with the given timing settings
func New(config Config) *Schedule {
	if config.BarInterval <= 0 {
		config.BarInterval = time.Minute
	}
	return &Schedule{config: config}
}

// NextStep returns the time of the next due step at or after now.
// During market hours this is the next bar-interval boundary; outside
// market hours it is either the next session open or now plus the
// off-hours period when one is configured.
func (s *Schedule) NextStep(now time.Time) time.Time {
	if !s.config.MarketHoursOnly {
		return now.Truncate(s.config.BarInterval).Add(s.config.BarInterval)
	}

	if IsMarketOpen(now) {
		return now.Truncate(s.config.BarInterval).Add(s.config.BarInterval)
	}
	if s.config.OffHoursPeriod > 0 {
		return now.Add(s.config.OffHoursPeriod)
	}
	return NextOpen(now)
}

// Due reports whether a step boundary has passed since last
func (s *Schedule) Due(now, last time.Time) bool {
	if last.IsZero() {
		return true
	}
	return !now.Before(s.NextStep(last))
}

// UntilNext returns the wait before the next step is due
func (s *Schedule) UntilNext(now time.Time) time.Duration {
	d := s.NextStep(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
