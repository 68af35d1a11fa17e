package strategy

import (
	"github.com/equityrun/equityrun/internal/market"
)

// Breakout signals long when the latest close clears the highest high
// of the lookback window (excluding the current bar). Confidence scales
// with the breakout distance in ATR units.
type Breakout struct {
	Lookback  int     // breakout channel period
	ATRPeriod int     // volatility scale for confidence
	ATRUnits  float64 // ATR multiples for full confidence
}

// NewBreakout returns a breakout evaluator with standard parameters
func NewBreakout() *Breakout {
	return &Breakout{Lookback: 20, ATRPeriod: 14, ATRUnits: 2.0}
}

func (b *Breakout) Name() string { return "breakout" }

// Evaluate implements the Evaluator contract
func (b *Breakout) Evaluate(history *market.Series) Output {
	required := b.Lookback + 1
	if b.ATRPeriod+1 > required {
		required = b.ATRPeriod + 1
	}
	if history.Len() < required {
		return insufficient(history.Len(), required)
	}

	// Channel over bars before the current one: no lookahead
	prior := &market.Series{Symbol: history.Symbol, Bars: history.Bars[:history.Len()-1]}
	level := prior.HighestHigh(b.Lookback)
	last := history.Last()
	atr := history.ATR(b.ATRPeriod)

	explanation := map[string]interface{}{
		"breakout_level": level,
		"close":          last.Close,
		"atr":            atr,
	}

	if level <= 0 || last.Close <= level {
		return Output{Signal: SignalFlat, Confidence: 0, Explanation: explanation}
	}

	confidence := 1.0
	if atr > 0 {
		confidence = clip01((last.Close - level) / (atr * b.ATRUnits))
	}
	explanation["distance_atr"] = 0.0
	if atr > 0 {
		explanation["distance_atr"] = (last.Close - level) / atr
	}

	return Output{Signal: SignalLong, Confidence: confidence, Explanation: explanation}
}
