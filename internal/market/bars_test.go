package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeries(closes ...float64) *Series {
	s := &Series{Symbol: "TEST"}
	base := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Append(Bar{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		})
	}
	return s
}

func TestSeries_AppendOrdering(t *testing.T) {
	s := testSeries(100, 101)
	require.Equal(t, 2, s.Len())

	// Out-of-order and duplicate timestamps are dropped silently
	s.Append(Bar{Timestamp: s.Bars[0].Timestamp, Close: 99})
	s.Append(Bar{Timestamp: s.Last().Timestamp, Close: 99})
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 101.0, s.Last().Close)
}

func TestSeries_SMA(t *testing.T) {
	s := testSeries(1, 2, 3, 4, 5)

	assert.Equal(t, 4.0, s.SMA(3))
	assert.Equal(t, 3.0, s.SMA(5))
	// Not enough data
	assert.Equal(t, 0.0, s.SMA(6))
	assert.Equal(t, 0.0, s.SMA(0))
}

func TestSeries_ATR(t *testing.T) {
	// Constant closes with a fixed 2-point bar range: every TR is 2
	s := testSeries(100, 100, 100, 100, 100)
	assert.InDelta(t, 2.0, s.ATR(4), 1e-9)

	// Needs period+1 bars
	assert.Equal(t, 0.0, s.ATR(5))
}

func TestSeries_ATRGaps(t *testing.T) {
	// A large gap makes |high-prevClose| the dominant true range
	s := testSeries(100, 120)
	// TR = max(2, |121-100|, |119-100|) = 21
	assert.InDelta(t, 21.0, s.ATR(1), 1e-9)
}

func TestSeries_Extremes(t *testing.T) {
	s := testSeries(10, 30, 20)

	assert.Equal(t, 31.0, s.HighestHigh(3))
	assert.Equal(t, 9.0, s.LowestLow(3))
	// Window narrower than the series
	assert.Equal(t, 31.0, s.HighestHigh(2))
	assert.Equal(t, 19.0, s.LowestLow(1))
	// Window wider than the series uses what exists
	assert.Equal(t, 31.0, s.HighestHigh(10))
}

func TestSeries_Empty(t *testing.T) {
	s := &Series{Symbol: "TEST"}

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, Bar{}, s.Last())
	assert.Equal(t, 0.0, s.SMA(5))
	assert.Equal(t, 0.0, s.ATR(5))
	assert.Equal(t, 0.0, s.HighestHigh(5))
	assert.Equal(t, 0.0, s.AvgVolume(5))
}

func TestSyntheticProvider_Deterministic(t *testing.T) {
	ctx := context.Background()

	a := NewSyntheticProvider(30, 24*time.Hour)
	b := NewSyntheticProvider(30, 24*time.Hour)

	seriesA, err := a.DownloadBars(ctx, []string{"AAPL"}, "1mo", "1d")
	require.NoError(t, err)
	seriesB, err := b.DownloadBars(ctx, []string{"AAPL"}, "1mo", "1d")
	require.NoError(t, err)

	require.Equal(t, 30, seriesA["AAPL"].Len())
	assert.Equal(t, seriesA["AAPL"].Closes(), seriesB["AAPL"].Closes())

	// Different symbols walk differently
	other, err := a.DownloadBars(ctx, []string{"MSFT"}, "1mo", "1d")
	require.NoError(t, err)
	assert.NotEqual(t, seriesA["AAPL"].Closes(), other["MSFT"].Closes())
}

func TestSyntheticProvider_Advance(t *testing.T) {
	ctx := context.Background()
	p := NewSyntheticProvider(30, 24*time.Hour)

	before, err := p.DownloadBars(ctx, []string{"AAPL"}, "1mo", "1d")
	require.NoError(t, err)

	p.Advance()

	after, err := p.DownloadBars(ctx, []string{"AAPL"}, "1mo", "1d")
	require.NoError(t, err)
	assert.Equal(t, before["AAPL"].Len()+1, after["AAPL"].Len())

	// Returned series are copies: mutating them never leaks back
	after["AAPL"].Bars[0].Close = -1
	again, err := p.DownloadBars(ctx, []string{"AAPL"}, "1mo", "1d")
	require.NoError(t, err)
	assert.NotEqual(t, -1.0, again["AAPL"].Bars[0].Close)
}

func TestSyntheticProvider_LatestPrice(t *testing.T) {
	ctx := context.Background()
	p := NewSyntheticProvider(30, 24*time.Hour)

	series, err := p.DownloadBars(ctx, []string{"AAPL"}, "1mo", "1d")
	require.NoError(t, err)

	price, err := p.LatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, series["AAPL"].Last().Close, price)
	assert.Greater(t, price, 0.0)
}
