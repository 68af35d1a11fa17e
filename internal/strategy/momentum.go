package strategy

import (
	"github.com/equityrun/equityrun/internal/market"
)

// Momentum signals long when the fast moving average sits above the
// slow one with volume confirmation. Confidence is the normalized MA
// separation against a reference spread.
type Momentum struct {
	FastPeriod   int     // fast SMA window
	SlowPeriod   int     // slow SMA window
	VolPeriod    int     // average-volume window for confirmation
	VolMult      float64 // current volume must exceed avg*VolMult
	RefSpreadPct float64 // MA separation for full confidence
}

// NewMomentum returns a momentum evaluator with standard parameters
func NewMomentum() *Momentum {
	return &Momentum{FastPeriod: 10, SlowPeriod: 30, VolPeriod: 20, VolMult: 1.0, RefSpreadPct: 0.03}
}

func (m *Momentum) Name() string { return "momentum" }

// Evaluate implements the Evaluator contract
func (m *Momentum) Evaluate(history *market.Series) Output {
	if history.Len() < m.SlowPeriod {
		return insufficient(history.Len(), m.SlowPeriod)
	}

	fast := history.SMA(m.FastPeriod)
	slow := history.SMA(m.SlowPeriod)
	avgVol := history.AvgVolume(m.VolPeriod)
	last := history.Last()

	explanation := map[string]interface{}{
		"fast_ma":    fast,
		"slow_ma":    slow,
		"volume":     last.Volume,
		"avg_volume": avgVol,
	}

	if slow <= 0 {
		explanation["error"] = "degenerate_average"
		return Output{Signal: SignalFlat, Confidence: 0, Explanation: explanation}
	}

	spread := (fast - slow) / slow
	explanation["ma_spread"] = spread

	volumeOK := avgVol == 0 || last.Volume >= avgVol*m.VolMult
	explanation["volume_confirmed"] = volumeOK

	if spread <= 0 || !volumeOK {
		return Output{Signal: SignalFlat, Confidence: 0, Explanation: explanation}
	}

	confidence := clip01(spread / m.RefSpreadPct)
	return Output{Signal: SignalLong, Confidence: confidence, Explanation: explanation}
}
