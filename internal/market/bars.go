package market

import (
	"time"
)

// Bar represents a single OHLCV observation for a fixed interval
type Bar struct {
	Timestamp time.Time `json:"ts" db:"ts"`
	Open      float64   `json:"open" db:"open"`
	High      float64   `json:"high" db:"high"`
	Low       float64   `json:"low" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    float64   `json:"volume" db:"volume"`
}

// Series is an ordered OHLCV history, monotonically increasing in time.
// Indicators computed at index i must only use data at or before i.
type Series struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars in the series
func (s *Series) Len() int {
	return len(s.Bars)
}

// Last returns the most recent bar, or a zero bar if the series is empty
func (s *Series) Last() Bar {
	if len(s.Bars) == 0 {
		return Bar{}
	}
	return s.Bars[len(s.Bars)-1]
}

// Closes returns the close prices in time order
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Append adds a bar, dropping it silently if it would break time ordering
func (s *Series) Append(b Bar) {
	if len(s.Bars) > 0 && !b.Timestamp.After(s.Bars[len(s.Bars)-1].Timestamp) {
		return
	}
	s.Bars = append(s.Bars, b)
}

// Tail returns the last n bars (or all bars if fewer than n exist)
func (s *Series) Tail(n int) []Bar {
	if n >= len(s.Bars) {
		return s.Bars
	}
	return s.Bars[len(s.Bars)-n:]
}

// SMA computes the simple moving average of the last period closes.
// Returns 0 when fewer than period bars are available.
func (s *Series) SMA(period int) float64 {
	if period <= 0 || len(s.Bars) < period {
		return 0
	}
	sum := 0.0
	for _, b := range s.Bars[len(s.Bars)-period:] {
		sum += b.Close
	}
	return sum / float64(period)
}

// ATR computes the average true range over the last period bars.
// Returns 0 when fewer than period+1 bars are available.
func (s *Series) ATR(period int) float64 {
	if period <= 0 || len(s.Bars) < period+1 {
		return 0
	}
	sum := 0.0
	start := len(s.Bars) - period
	for i := start; i < len(s.Bars); i++ {
		cur := s.Bars[i]
		prevClose := s.Bars[i-1].Close
		tr := cur.High - cur.Low
		if hc := abs(cur.High - prevClose); hc > tr {
			tr = hc
		}
		if lc := abs(cur.Low - prevClose); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period)
}

// HighestHigh returns the maximum high over the last period bars
func (s *Series) HighestHigh(period int) float64 {
	bars := s.Tail(period)
	if len(bars) == 0 {
		return 0
	}
	max := bars[0].High
	for _, b := range bars[1:] {
		if b.High > max {
			max = b.High
		}
	}
	return max
}

// LowestLow returns the minimum low over the last period bars
func (s *Series) LowestLow(period int) float64 {
	bars := s.Tail(period)
	if len(bars) == 0 {
		return 0
	}
	min := bars[0].Low
	for _, b := range bars[1:] {
		if b.Low < min {
			min = b.Low
		}
	}
	return min
}

// AvgVolume returns the mean volume over the last period bars
func (s *Series) AvgVolume(period int) float64 {
	bars := s.Tail(period)
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / float64(len(bars))
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
