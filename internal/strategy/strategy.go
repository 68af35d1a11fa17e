package strategy

import (
	"github.com/rs/zerolog/log"

	"github.com/equityrun/equityrun/internal/market"
)

// Signal values: 1 = maintain/enter long, 0 = flat/exit. There is no
// short signal, the broker is long-only.
const (
	SignalFlat = 0
	SignalLong = 1
)

// Output is the result of one strategy evaluation. Confidence is a
// deterministic, monotonic function of how far past the decision
// threshold the current bar sits, clipped to [0,1], so outputs are
// comparable across strategies when the ensemble blends them.
type Output struct {
	Signal      int                    `json:"signal"`
	Confidence  float64                `json:"confidence"`
	Explanation map[string]interface{} `json:"explanation"`
}

// Evaluator derives a trading signal from an ordered OHLCV history.
// Implementations must be stateless across calls, side-effect free, and
// must never use data past the final bar of the input.
type Evaluator interface {
	Name() string
	Evaluate(history *market.Series) Output
}

// Flat returns the neutral output used when a strategy cannot decide
func Flat() Output {
	return Output{Signal: SignalFlat, Confidence: 0, Explanation: map[string]interface{}{}}
}

// insufficient builds the contract-mandated output for short histories
func insufficient(rows, required int) Output {
	return Output{
		Signal:     SignalFlat,
		Confidence: 0,
		Explanation: map[string]interface{}{
			"error":    "insufficient_data",
			"rows":     rows,
			"required": required,
		},
	}
}

// clip01 bounds a confidence value to [0,1]
func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SafeEvaluate runs an evaluator and converts any panic into a neutral
// output. One misbehaving strategy must not halt the ensemble.
func SafeEvaluate(e Evaluator, history *market.Series) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("strategy", e.Name()).Interface("panic", r).
				Msg("Strategy evaluation panicked, returning neutral output")
			out = Output{
				Signal:      SignalFlat,
				Confidence:  0,
				Explanation: map[string]interface{}{"error": "evaluation_panic"},
			}
		}
	}()
	return e.Evaluate(history)
}
