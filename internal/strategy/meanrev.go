package strategy

import (
	"math"

	"github.com/equityrun/equityrun/internal/market"
)

// MeanReversion buys dips below a moving average measured in standard
// deviations, staying flat once price has reverted back above the mean.
// Confidence grows with the depth of the dip past the entry band.
type MeanReversion struct {
	Period    int     // mean and deviation window
	EntryZ    float64 // z-score below mean to trigger entry
	FullZ     float64 // z-score for full confidence
	ExitDrift float64 // fraction above mean treated as reverted
}

// NewMeanReversion returns a mean-reversion evaluator with standard parameters
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{Period: 20, EntryZ: 1.5, FullZ: 3.0, ExitDrift: 0.0}
}

func (m *MeanReversion) Name() string { return "mean_reversion" }

// Evaluate implements the Evaluator contract
func (m *MeanReversion) Evaluate(history *market.Series) Output {
	if history.Len() < m.Period {
		return insufficient(history.Len(), m.Period)
	}

	mean := history.SMA(m.Period)
	closes := history.Closes()
	window := closes[len(closes)-m.Period:]
	variance := 0.0
	for _, c := range window {
		variance += (c - mean) * (c - mean)
	}
	stddev := math.Sqrt(variance / float64(m.Period))

	last := history.Last().Close
	explanation := map[string]interface{}{
		"mean":   mean,
		"stddev": stddev,
		"close":  last,
	}

	if stddev == 0 || mean <= 0 {
		explanation["error"] = "zero_dispersion"
		return Output{Signal: SignalFlat, Confidence: 0, Explanation: explanation}
	}

	z := (mean - last) / stddev
	explanation["z_score"] = z

	if z < m.EntryZ {
		return Output{Signal: SignalFlat, Confidence: 0, Explanation: explanation}
	}

	confidence := clip01((z - m.EntryZ) / (m.FullZ - m.EntryZ))
	return Output{Signal: SignalLong, Confidence: confidence, Explanation: explanation}
}
