package ensemble

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityrun/equityrun/internal/regime"
	"github.com/equityrun/equityrun/internal/strategy"
)

var testStrategies = []string{"momentum", "mean_reversion", "breakout"}

func sumWeights(weights map[string]float64) float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	return total
}

func TestNewCombiner_UniformWeights(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())
	weights := c.Weights()

	require.Len(t, weights, 3)
	for name, w := range weights {
		assert.InDelta(t, 1.0/3.0, w, 1e-9, name)
	}
	assert.InDelta(t, 1.0, sumWeights(weights), 1e-9)
}

func TestCombiner_UpdateKeepsWeightsNormalized(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())

	updates := []map[string]float64{
		{"momentum": 0.5, "mean_reversion": -0.5, "breakout": 0.0},
		{"momentum": -2.0, "mean_reversion": -2.0, "breakout": -2.0},
		{"momentum": 0.0, "mean_reversion": 0.0, "breakout": 0.0},
		{"momentum": 5.0}, // clipped to +1, others untouched
	}
	for _, scores := range updates {
		c.Update(scores)
		weights := c.Weights()
		assert.InDelta(t, 1.0, sumWeights(weights), 1e-9)
		for name, w := range weights {
			assert.Greater(t, w, 0.0, name)
		}
	}

	// Positive scores shift weight toward the scorer
	weights := c.Weights()
	assert.Greater(t, weights["momentum"], weights["mean_reversion"])
}

func TestCombiner_UpdateIgnoresUnknownStrategies(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())
	c.Update(map[string]float64{"unknown": 1.0})

	weights := c.Weights()
	require.Len(t, weights, 3)
	assert.InDelta(t, 1.0, sumWeights(weights), 1e-9)
}

func TestCombiner_CombineDeterministic(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())
	outputs := map[string]strategy.Output{
		"momentum":       {Signal: strategy.SignalLong, Confidence: 0.9},
		"mean_reversion": {Signal: strategy.SignalFlat, Confidence: 0.2},
		"breakout":       {Signal: strategy.SignalLong, Confidence: 0.8},
	}

	first := c.Combine("AAPL", outputs, nil)
	for i := 0; i < 10; i++ {
		next := c.Combine("AAPL", outputs, nil)
		assert.Equal(t, first.Signal, next.Signal)
		assert.Equal(t, first.Confidence, next.Confidence)
		assert.Equal(t, first.Votes, next.Votes)
		assert.Equal(t, first.Weights, next.Weights)
	}

	assert.Equal(t, strategy.SignalLong, first.Signal)
	// longMass = (0.9 + 0.8)/3, totalWeight = 1
	assert.InDelta(t, 1.7/3.0, first.Confidence, 1e-9)
}

func TestCombiner_ExactTieGoesFlat(t *testing.T) {
	c := NewCombiner([]string{"a", "b"}, DefaultConfig())
	outputs := map[string]strategy.Output{
		"a": {Signal: strategy.SignalLong, Confidence: 1.0},
		"b": {Signal: strategy.SignalFlat, Confidence: 1.0},
	}

	// longMass/totalWeight is exactly 0.5: the decision is flat
	decision := c.Combine("AAPL", outputs, nil)
	assert.Equal(t, strategy.SignalFlat, decision.Signal)
	assert.InDelta(t, 0.5, decision.Confidence, 1e-9)
}

func TestCombiner_AllFlatIsFlat(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())
	outputs := map[string]strategy.Output{
		"momentum":       strategy.Flat(),
		"mean_reversion": strategy.Flat(),
		"breakout":       strategy.Flat(),
	}

	// Flat voters with zero confidence carry zero conviction
	decision := c.Combine("AAPL", outputs, nil)
	assert.Equal(t, strategy.SignalFlat, decision.Signal)
	assert.InDelta(t, 0.0, decision.Confidence, 1e-9)
}

func TestCombiner_FlatConfidenceIsFlatShare(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())
	outputs := map[string]strategy.Output{
		"momentum":       {Signal: strategy.SignalLong, Confidence: 0.9},
		"mean_reversion": {Signal: strategy.SignalFlat, Confidence: 0.0},
		"breakout":       {Signal: strategy.SignalFlat, Confidence: 0.0},
	}

	// The vote is flat (longMass 0.3 of total weight), and its
	// confidence comes from the flat voters themselves, not from the
	// losing long mass
	decision := c.Combine("AAPL", outputs, nil)
	assert.Equal(t, strategy.SignalFlat, decision.Signal)
	assert.InDelta(t, 0.0, decision.Confidence, 1e-9)

	outputs["mean_reversion"] = strategy.Output{Signal: strategy.SignalFlat, Confidence: 0.6}
	decision = c.Combine("AAPL", outputs, nil)
	assert.Equal(t, strategy.SignalFlat, decision.Signal)
	assert.InDelta(t, 0.2, decision.Confidence, 1e-9) // 0.6/3
}

func TestCombiner_ZeroTotalWeight(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())
	outputs := map[string]strategy.Output{
		"momentum": {Signal: strategy.SignalLong, Confidence: 1.0},
	}

	decision := c.Combine("AAPL", outputs, map[string]float64{})
	assert.Equal(t, strategy.SignalFlat, decision.Signal)
	assert.Equal(t, 0.0, decision.Confidence)
}

func TestCombiner_RegimeAdjustedDoesNotMutateLearned(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())
	before := c.Weights()

	state := regime.State{Regime: regime.TrendingUp, Confidence: 0.8}
	blended := c.RegimeAdjusted(state)

	assert.InDelta(t, 1.0, sumWeights(blended), 1e-9)
	// Trending affinity favors momentum over the uniform prior
	assert.Greater(t, blended["momentum"], before["momentum"])
	// The learned weights are untouched by the per-decision blend
	assert.Equal(t, before, c.Weights())
}

func TestCombiner_RegimeAdjustedFallsBackToLearned(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())

	// No affinity table for an unknown regime
	blended := c.RegimeAdjusted(regime.State{Regime: regime.InsufficientData, Confidence: 0.9})
	assert.Equal(t, c.Weights(), blended)

	// Zero regime confidence means pure learned weights
	blended = c.RegimeAdjusted(regime.State{Regime: regime.TrendingUp, Confidence: 0})
	assert.Equal(t, c.Weights(), blended)
}

func TestCombiner_SetWeightsRenormalizes(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())
	c.SetWeights(map[string]float64{
		"momentum":       2.0,
		"mean_reversion": 1.0,
		"breakout":       1.0,
		"unknown":        9.0,
	})

	weights := c.Weights()
	require.Len(t, weights, 3)
	assert.InDelta(t, 1.0, sumWeights(weights), 1e-9)
	assert.InDelta(t, 0.5, weights["momentum"], 1e-9)
}

func TestDecision_JSONRoundTrip(t *testing.T) {
	c := NewCombiner(testStrategies, DefaultConfig())
	outputs := map[string]strategy.Output{
		"momentum": {
			Signal:      strategy.SignalLong,
			Confidence:  0.7,
			Explanation: map[string]interface{}{"spread": 0.04, "reason": "ma_cross"},
		},
		"mean_reversion": strategy.Flat(),
		"breakout":       {Signal: strategy.SignalFlat, Confidence: 0.1},
	}
	decision := c.Combine("MSFT", outputs, nil)

	raw, err := json.Marshal(decision)
	require.NoError(t, err)

	var decoded Decision
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, decision.Symbol, decoded.Symbol)
	assert.Equal(t, decision.Signal, decoded.Signal)
	assert.Equal(t, decision.Votes, decoded.Votes)
	assert.Equal(t, decision.Weights, decoded.Weights)
	assert.Equal(t, "ma_cross", decoded.Explanations["momentum"]["reason"])
}
