package strategy

import (
	"fmt"
	"sort"
)

// The strategy set is closed and registered at init time. A string
// lookup that fails is a programming error, not a runtime condition.
var registry = map[string]func() Evaluator{
	"breakout":       func() Evaluator { return NewBreakout() },
	"mean_reversion": func() Evaluator { return NewMeanReversion() },
	"momentum":       func() Evaluator { return NewMomentum() },
}

// Names returns all registered strategy names in stable order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs a fresh evaluator for a registered name
func New(name string) (Evaluator, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}
	return factory(), nil
}

// DefaultSet constructs one evaluator of every registered variant
func DefaultSet() []Evaluator {
	return SetFromParams(nil)
}

// SetFromParams constructs one evaluator of every registered variant
// with per-strategy tuning overrides applied. Strategies absent from
// params keep their standard parameters.
func SetFromParams(params map[string]map[string]float64) []Evaluator {
	names := Names()
	set := make([]Evaluator, 0, len(names))
	for _, name := range names {
		e, _ := NewFromParams(name, params[name])
		set = append(set, e)
	}
	return set
}

// NewFromParams constructs an evaluator for a registered name with
// tuning overrides applied. Unknown keys are ignored; out-of-range
// values keep the standard parameter.
func NewFromParams(name string, params map[string]float64) (Evaluator, error) {
	e, err := New(name)
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return e, nil
	}
	switch s := e.(type) {
	case *Breakout:
		s.Lookback = intParam(params, "lookback", s.Lookback)
		s.ATRPeriod = intParam(params, "atr_period", s.ATRPeriod)
		s.ATRUnits = floatParam(params, "atr_units", s.ATRUnits)
	case *MeanReversion:
		s.Period = intParam(params, "period", s.Period)
		s.EntryZ = floatParam(params, "entry_z", s.EntryZ)
		s.FullZ = floatParam(params, "full_z", s.FullZ)
	case *Momentum:
		s.FastPeriod = intParam(params, "fast_period", s.FastPeriod)
		s.SlowPeriod = intParam(params, "slow_period", s.SlowPeriod)
		s.VolPeriod = intParam(params, "vol_period", s.VolPeriod)
		s.VolMult = floatParam(params, "vol_mult", s.VolMult)
		s.RefSpreadPct = floatParam(params, "ref_spread_pct", s.RefSpreadPct)
	}
	return e, nil
}

func floatParam(params map[string]float64, key string, fallback float64) float64 {
	if v, ok := params[key]; ok && v > 0 {
		return v
	}
	return fallback
}

func intParam(params map[string]float64, key string, fallback int) int {
	if v, ok := params[key]; ok && v >= 1 {
		return int(v)
	}
	return fallback
}
