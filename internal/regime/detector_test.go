package regime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityrun/equityrun/internal/market"
)

// seriesFrom builds a daily series where each bar's high/low sit
// rangePct above/below its close.
func seriesFrom(closes []float64, rangePct float64) *market.Series {
	s := &market.Series{Symbol: "TEST"}
	base := time.Date(2026, 1, 2, 21, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Append(market.Bar{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c * (1 + rangePct),
			Low:       c * (1 - rangePct),
			Close:     c,
			Volume:    1_000_000,
		})
	}
	return s
}

func geometric(start, growth float64, n int) []float64 {
	out := make([]float64, n)
	price := start
	for i := range out {
		out[i] = price
		price *= 1 + growth
	}
	return out
}

func TestDetect_InsufficientData(t *testing.T) {
	d := NewDetector()

	state := d.Detect(nil)
	assert.Equal(t, InsufficientData, state.Regime)
	assert.Equal(t, 0.0, state.Confidence)

	state = d.Detect(seriesFrom(geometric(100, 0.01, 13), 0.01))
	assert.Equal(t, InsufficientData, state.Regime)
	require.NotNil(t, state.Explanation)
	assert.Equal(t, "insufficient_data", state.Explanation["error"])
	assert.Equal(t, 13, state.Explanation["rows"])
	assert.Equal(t, 14, state.Explanation["required"])
}

func TestDetect_VolatileDominatesTrend(t *testing.T) {
	d := NewDetector()

	// Strong uptrend with violent daily ranges: volatility wins even
	// though the trend alone would classify as trending
	state := d.Detect(seriesFrom(geometric(100, 0.02, 40), 0.08))
	assert.Equal(t, Volatile, state.Regime)
	assert.Greater(t, state.Volatility, 0.40)
	assert.Greater(t, state.TrendStrength, 0.5)
	assert.Greater(t, state.Confidence, 0.0)
	assert.LessOrEqual(t, state.Confidence, 1.0)
}

func TestDetect_Volatile(t *testing.T) {
	d := NewDetector()

	// Flat prices but wide intraday ranges annualize past the threshold
	state := d.Detect(seriesFrom(geometric(100, 0, 40), 0.05))
	assert.Equal(t, Volatile, state.Regime)
	assert.Greater(t, state.Volatility, 0.40)
}

func TestDetect_TrendingUp(t *testing.T) {
	d := NewDetector()

	state := d.Detect(seriesFrom(geometric(100, 0.01, 40), 0.001))
	assert.Equal(t, TrendingUp, state.Regime)
	assert.Greater(t, state.TrendStrength, 0.5)
	assert.Equal(t, state.TrendStrength, state.Confidence)
	assert.Less(t, state.Volatility, 0.40)
}

func TestDetect_TrendingDown(t *testing.T) {
	d := NewDetector()

	state := d.Detect(seriesFrom(geometric(100, -0.01, 40), 0.001))
	assert.Equal(t, TrendingDown, state.Regime)
	assert.Greater(t, state.TrendStrength, 0.5)
}

func TestDetect_TrendWithShortHistory(t *testing.T) {
	d := NewDetector()

	// 20 bars is past MinBars but short of the slow window: the slow MA
	// averages the bars that exist, so a steady climb still classifies
	// as trending instead of degenerating to ranging
	state := d.Detect(seriesFrom(geometric(100, 0.02, 20), 0.001))
	assert.Equal(t, TrendingUp, state.Regime)
	assert.Greater(t, state.TrendStrength, 0.5)
	assert.Less(t, state.Volatility, 0.40)

	// Same at exactly MinBars
	state = d.Detect(seriesFrom(geometric(100, 0.02, 14), 0.001))
	assert.Equal(t, TrendingUp, state.Regime)
	assert.Greater(t, state.TrendStrength, 0.5)

	// A flat short history still ranges
	state = d.Detect(seriesFrom(geometric(100, 0, 20), 0.002))
	assert.Equal(t, Ranging, state.Regime)
}

func TestDetect_Ranging(t *testing.T) {
	d := NewDetector()

	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + 0.5*math.Sin(float64(i))
	}
	state := d.Detect(seriesFrom(closes, 0.002))
	assert.Equal(t, Ranging, state.Regime)
	assert.LessOrEqual(t, state.TrendStrength, 0.5)
	assert.InDelta(t, 1.0-state.TrendStrength, state.Confidence, 1e-9)
}

func TestDetect_SupportResistance(t *testing.T) {
	d := NewDetector()

	series := seriesFrom(geometric(100, 0.01, 40), 0.001)
	state := d.Detect(series)
	assert.Equal(t, series.LowestLow(20), state.Support)
	assert.Equal(t, series.HighestHigh(20), state.Resistance)
	assert.Greater(t, state.Resistance, state.Support)
}

func TestRegime_String(t *testing.T) {
	assert.Equal(t, "trending_up", TrendingUp.String())
	assert.Equal(t, "trending_down", TrendingDown.String())
	assert.Equal(t, "ranging", Ranging.String())
	assert.Equal(t, "volatile", Volatile.String())
	assert.Equal(t, "insufficient_data", InsufficientData.String())
}

func TestAffinity_Tables(t *testing.T) {
	for _, r := range []Regime{TrendingUp, TrendingDown, Ranging, Volatile} {
		table := Affinity(r)
		require.NotNil(t, table, r.String())
		total := 0.0
		for _, w := range table {
			total += w
		}
		assert.InDelta(t, 1.0, total, 1e-9, r.String())
	}

	assert.Nil(t, Affinity(InsufficientData))

	// Returned tables are copies
	table := Affinity(Volatile)
	table["breakout"] = 0
	assert.Equal(t, 0.60, Affinity(Volatile)["breakout"])
}
