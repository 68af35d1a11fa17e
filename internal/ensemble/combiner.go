package ensemble

import (
	"math"
	"sync"
	"time"

	"github.com/equityrun/equityrun/internal/regime"
	"github.com/equityrun/equityrun/internal/strategy"
)

// Decision is the single blended signal for one symbol and step.
// Persisted for audit; never mutated after creation.
type Decision struct {
	Timestamp    time.Time                         `json:"ts"`
	Symbol       string                            `json:"symbol"`
	Signal       int                               `json:"signal"`
	Confidence   float64                           `json:"confidence"`
	Votes        map[string]int                    `json:"votes"`
	Weights      map[string]float64                `json:"weights"`
	Explanations map[string]map[string]interface{} `json:"explanations"`
}

// Config holds ensemble learning parameters
type Config struct {
	LearningRate float64 `yaml:"learning_rate"` // Default: 0.1 (exponential-weights eta)
	ScoreClip    float64 `yaml:"score_clip"`    // Default: 1.0, bounds per-update scores
}

// DefaultConfig returns standard learning parameters
func DefaultConfig() Config {
	return Config{LearningRate: 0.1, ScoreClip: 1.0}
}

// Combiner blends per-strategy votes into one decision and adapts
// per-strategy weights with an exponential-weights update. Weights are
// always renormalized to sum 1. The combiner is the only component
// besides the portfolio holding cross-step mutable state, so it guards
// itself with a mutex.
type Combiner struct {
	mu      sync.Mutex
	weights map[string]float64
	config  Config
}

// NewCombiner creates a combiner with uniform weights over the given
// strategy names.
func NewCombiner(strategies []string, config Config) *Combiner {
	weights := make(map[string]float64, len(strategies))
	if len(strategies) > 0 {
		w := 1.0 / float64(len(strategies))
		for _, name := range strategies {
			weights[name] = w
		}
	}
	return &Combiner{weights: weights, config: config}
}

// Weights returns a copy of the current learned weights
func (c *Combiner) Weights() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyWeights(c.weights)
}

// SetWeights replaces the learned weights, renormalizing to sum 1.
// Used to restore checkpointed learning state at startup. Unknown
// strategies are dropped; missing ones keep a zero weight.
func (c *Combiner) SetWeights(weights map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.weights {
		if w, ok := weights[name]; ok && w >= 0 {
			c.weights[name] = w
		}
	}
	normalize(c.weights)
}

// Combine aggregates strategy outputs into one decision using the given
// decision weights (regime-adjusted or otherwise). A nil weights map
// uses the learned weights. Signal is long iff the weighted sum of
// signal*confidence strictly exceeds half of the total weight; an exact
// tie goes flat to bias toward caution.
func (c *Combiner) Combine(symbol string, outputs map[string]strategy.Output, weights map[string]float64) Decision {
	if weights == nil {
		weights = c.Weights()
	}

	votes := make(map[string]int, len(outputs))
	explanations := make(map[string]map[string]interface{}, len(outputs))
	totalWeight := 0.0
	longMass := 0.0
	flatMass := 0.0

	for name, out := range outputs {
		votes[name] = out.Signal
		explanations[name] = out.Explanation
		w := weights[name]
		totalWeight += w
		if out.Signal == strategy.SignalLong {
			longMass += w * out.Confidence
		} else {
			flatMass += w * out.Confidence
		}
	}

	decision := Decision{
		Timestamp:    time.Now().UTC(),
		Symbol:       symbol,
		Signal:       strategy.SignalFlat,
		Votes:        votes,
		Weights:      copyWeights(weights),
		Explanations: explanations,
	}

	if totalWeight <= 0 {
		return decision
	}

	// Decision confidence is the winning side's own weighted confidence
	// share: a flat decision carried by zero-confidence voters reports
	// zero conviction, not the complement of the long mass.
	longShare := longMass / totalWeight
	if longShare > 0.5 {
		decision.Signal = strategy.SignalLong
		decision.Confidence = longShare
	} else {
		decision.Confidence = flatMass / totalWeight
	}
	return decision
}

// Update applies the exponential-weights rule w_i <- w_i*exp(eta*score_i)
// to the learned weights and renormalizes. Scores are clipped to
// [-ScoreClip, +ScoreClip] to prevent runaway weight collapse. The
// update always operates on the pre-blend learned weights: regime
// blending never erodes long-run learning signal.
func (c *Combiner) Update(scores map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	clip := c.config.ScoreClip
	for name, score := range scores {
		w, ok := c.weights[name]
		if !ok {
			continue
		}
		if score > clip {
			score = clip
		} else if score < -clip {
			score = -clip
		}
		c.weights[name] = w * math.Exp(c.config.LearningRate*score)
	}
	normalize(c.weights)
}

// RegimeAdjusted blends the learned weights with the fixed regime
// affinity table: w' = (1-conf)*learned + conf*affinity, renormalized.
// The blend applies to the current decision only and is never written
// back into the learned weights.
func (c *Combiner) RegimeAdjusted(state regime.State) map[string]float64 {
	learned := c.Weights()

	affinity := regime.Affinity(state.Regime)
	if affinity == nil || state.Confidence <= 0 {
		return learned
	}

	conf := state.Confidence
	if conf > 1 {
		conf = 1
	}

	blended := make(map[string]float64, len(learned))
	for name, w := range learned {
		blended[name] = (1-conf)*w + conf*affinity[name]
	}
	normalize(blended)
	return blended
}

func copyWeights(src map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// normalize scales weights in place to sum 1, resetting to uniform when
// the total is zero or non-finite.
func normalize(weights map[string]float64) {
	if len(weights) == 0 {
		return
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		uniform := 1.0 / float64(len(weights))
		for name := range weights {
			weights[name] = uniform
		}
		return
	}
	for name, w := range weights {
		weights[name] = w / total
	}
}
