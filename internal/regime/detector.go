package regime

import (
	"math"

	"github.com/equityrun/equityrun/internal/market"
)

// Regime classifies current market behavior for one symbol
type Regime int

const (
	InsufficientData Regime = iota
	TrendingUp
	TrendingDown
	Ranging
	Volatile
)

func (r Regime) String() string {
	switch r {
	case TrendingUp:
		return "trending_up"
	case TrendingDown:
		return "trending_down"
	case Ranging:
		return "ranging"
	case Volatile:
		return "volatile"
	case InsufficientData:
		return "insufficient_data"
	default:
		return "unknown"
	}
}

// State is the full regime classification for one detection pass.
// Recomputed from scratch each step from a rolling window.
type State struct {
	Regime        Regime                 `json:"regime"`
	Confidence    float64                `json:"confidence"`     // 0.0-1.0
	Volatility    float64                `json:"volatility"`     // annualized, >= 0
	TrendStrength float64                `json:"trend_strength"` // 0.0-1.0
	Support       float64                `json:"support,omitempty"`
	Resistance    float64                `json:"resistance,omitempty"`
	Explanation   map[string]interface{} `json:"explanation"`
}

// DetectorConfig holds classification thresholds
type DetectorConfig struct {
	MinBars          int     `yaml:"min_bars"`           // Default: 14
	ATRPeriod        int     `yaml:"atr_period"`         // Default: 14
	FastMA           int     `yaml:"fast_ma"`            // Default: 10
	SlowMA           int     `yaml:"slow_ma"`            // Default: 30
	VolThreshold     float64 `yaml:"vol_threshold"`      // Default: 0.40 (40% annualized)
	VolFullScale     float64 `yaml:"vol_full_scale"`     // Default: 0.60
	TrendThreshold   float64 `yaml:"trend_threshold"`    // Default: 0.5
	TrendRefSpread   float64 `yaml:"trend_ref_spread"`   // Default: 0.05 (5% MA separation)
	SRLookback       int     `yaml:"sr_lookback"`        // Default: 20
	AnnualizeFactor  float64 `yaml:"annualize_factor"`   // Default: sqrt(252)
}

// DefaultDetectorConfig returns the standard daily-bar thresholds
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinBars:         14,
		ATRPeriod:       14,
		FastMA:          10,
		SlowMA:          30,
		VolThreshold:    0.40,
		VolFullScale:    0.60,
		TrendThreshold:  0.5,
		TrendRefSpread:  0.05,
		SRLookback:      20,
		AnnualizeFactor: math.Sqrt(252),
	}
}

// Detector classifies market condition from a price history. It holds
// no cross-step state: every Detect call is a fresh computation.
type Detector struct {
	config DetectorConfig
}

// NewDetector creates a detector with default thresholds
func NewDetector() *Detector {
	return &Detector{config: DefaultDetectorConfig()}
}

// NewDetectorWithConfig creates a detector with custom thresholds
func NewDetectorWithConfig(config DetectorConfig) *Detector {
	return &Detector{config: config}
}

// Detect classifies the current regime. Classification precedence:
// volatility dominates trend because high-volatility regimes invalidate
// trend-following assumptions, then trend strength, then ranging.
func (d *Detector) Detect(history *market.Series) State {
	cfg := d.config
	if history == nil || history.Len() < cfg.MinBars {
		rows := 0
		if history != nil {
			rows = history.Len()
		}
		return State{
			Regime:     InsufficientData,
			Confidence: 0,
			Explanation: map[string]interface{}{
				"error":    "insufficient_data",
				"rows":     rows,
				"required": cfg.MinBars,
			},
		}
	}

	last := history.Last().Close
	atr := history.ATR(cfg.ATRPeriod)
	volatility := 0.0
	if last > 0 {
		volatility = (atr / last) * cfg.AnnualizeFactor
	}

	// With fewer bars than the slow window, average what exists rather
	// than letting a zero slow MA erase the trend signal
	fast := history.SMA(min(cfg.FastMA, history.Len()))
	slow := history.SMA(min(cfg.SlowMA, history.Len()))
	separation := 0.0
	if slow > 0 {
		separation = (fast - slow) / slow
	}
	trendStrength := math.Min(1.0, math.Abs(separation)/cfg.TrendRefSpread)

	support := history.LowestLow(cfg.SRLookback)
	resistance := history.HighestHigh(cfg.SRLookback)

	explanation := map[string]interface{}{
		"volatility_annualized": volatility,
		"fast_ma":               fast,
		"slow_ma":               slow,
		"ma_separation":         separation,
		"trend_strength":        trendStrength,
	}

	state := State{
		Volatility:    volatility,
		TrendStrength: trendStrength,
		Support:       support,
		Resistance:    resistance,
		Explanation:   explanation,
	}

	switch {
	case volatility > cfg.VolThreshold:
		state.Regime = Volatile
		state.Confidence = math.Min(1.0, volatility/cfg.VolFullScale)
	case trendStrength > cfg.TrendThreshold:
		if separation >= 0 {
			state.Regime = TrendingUp
		} else {
			state.Regime = TrendingDown
		}
		state.Confidence = trendStrength
	default:
		state.Regime = Ranging
		state.Confidence = 1.0 - trendStrength
	}

	return state
}
