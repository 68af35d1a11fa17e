package regime

// Strategy affinity per regime. These are fixed tables, not learned:
// the ensemble blends them with its learned weights for the current
// decision only, scaled by regime confidence.
//
// Trending regimes favor momentum, ranging favors mean reversion, and
// volatile regimes favor breakout since expansion moves resolve out of
// high-volatility compression.
var affinityTables = map[Regime]map[string]float64{
	TrendingUp: {
		"momentum":       0.70,
		"breakout":       0.20,
		"mean_reversion": 0.10,
	},
	TrendingDown: {
		"momentum":       0.70,
		"breakout":       0.20,
		"mean_reversion": 0.10,
	},
	Ranging: {
		"mean_reversion": 0.60,
		"momentum":       0.20,
		"breakout":       0.20,
	},
	Volatile: {
		"breakout":       0.60,
		"momentum":       0.20,
		"mean_reversion": 0.20,
	},
}

// Affinity returns the fixed strategy-affinity weights for a regime.
// The returned map is a copy; callers may mutate it freely. Regimes
// without a table (insufficient data) return nil, meaning no blend.
func Affinity(r Regime) map[string]float64 {
	table, ok := affinityTables[r]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out
}
