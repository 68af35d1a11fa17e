package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionSizeShares(t *testing.T) {
	// $10k equity at 2% risk with a $1.50 stop distance: floor(200/1.5)
	assert.Equal(t, 133, PositionSizeShares(10000, 100.0, 98.5, 0.02))

	assert.Equal(t, 0, PositionSizeShares(0, 100.0, 98.5, 0.02))
	assert.Equal(t, 0, PositionSizeShares(10000, 0, 98.5, 0.02))
	assert.Equal(t, 0, PositionSizeShares(10000, 100.0, 100.0, 0.02))
	assert.Equal(t, 0, PositionSizeShares(10000, 100.0, 98.5, 0))

	// Stop above entry still sizes off the absolute distance
	assert.Equal(t, 133, PositionSizeShares(10000, 98.5, 100.0, 0.02))
}

func TestSizer_ConfidenceGate(t *testing.T) {
	s := NewSizer(DefaultConfig())

	assert.False(t, s.Passes(0.29))
	assert.True(t, s.Passes(0.30))
	assert.True(t, s.Passes(1.0))

	// Below the floor the size is zero, not merely scaled down
	assert.Equal(t, 0, s.Shares(10000, 100.0, 98.5, 0.05, 0.29))
	assert.Greater(t, s.Shares(10000, 100.0, 98.5, 0.05, 0.30), 0)
}

func TestSizer_VolatilityFactor(t *testing.T) {
	s := NewSizer(DefaultConfig()) // vol_reference 0.10

	assert.Equal(t, 1.0, s.VolatilityFactor(0))
	assert.InDelta(t, 0.75, s.VolatilityFactor(0.05), 1e-9)
	assert.InDelta(t, 0.5, s.VolatilityFactor(0.10), 1e-9)
	// Clamped at the reference: extreme vol never scales below half
	assert.InDelta(t, 0.5, s.VolatilityFactor(0.50), 1e-9)
}

func TestSizer_ConfidenceFactor(t *testing.T) {
	s := NewSizer(DefaultConfig()) // floor 0.30

	assert.Equal(t, 0.5, s.ConfidenceFactor(0.30))
	assert.Equal(t, 0.5, s.ConfidenceFactor(0.10))
	assert.Equal(t, 1.0, s.ConfidenceFactor(1.0))
	assert.InDelta(t, 0.75, s.ConfidenceFactor(0.65), 1e-9)
}

func TestSizer_SharesScaling(t *testing.T) {
	s := NewSizer(DefaultConfig())

	// Full confidence, dead calm market: the factors are both 1.0
	assert.Equal(t, 133, s.Shares(10000, 100.0, 98.5, 0, 1.0))

	// Both factors at their minimum quarter the size
	assert.Equal(t, 33, s.Shares(10000, 100.0, 98.5, 0.20, 0.30))
}

func TestSizer_StopAndTargetLevels(t *testing.T) {
	s := NewSizer(DefaultConfig())

	assert.InDelta(t, 95.0, s.StopLossPrice(100.0), 1e-9)
	assert.InDelta(t, 110.0, s.TakeProfitPrice(100.0), 1e-9)
	assert.Equal(t, 0, s.MaxHoldBars())
}

func TestSizer_CheckLimits(t *testing.T) {
	s := NewSizer(DefaultConfig()) // max position 25%, max gross 1.0x

	assert.NoError(t, s.CheckLimits(2000, 0, 0, 10000))

	err := s.CheckLimits(2000, 1000, 1000, 10000)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "position limit")

	err = s.CheckLimits(2000, 0, 9000, 10000)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exposure limit")

	err = s.CheckLimits(2000, 0, 0, -1)
	assert.Error(t, err)
}
