package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SnapshotProvider supplies OHLCV history and latest prices for each
// engine step. Missing symbols are omitted from the returned map, not
// reported as errors.
type SnapshotProvider interface {
	DownloadBars(ctx context.Context, symbols []string, period, interval string) (map[string]*Series, error)
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// SyntheticProvider generates deterministic random-walk OHLCV data for
// paper mode and backtests without touching the network. Each symbol's
// walk is seeded from its name so runs are reproducible.
type SyntheticProvider struct {
	mu      sync.Mutex
	series  map[string]*Series
	start   time.Time
	step    time.Duration
	history int
}

// NewSyntheticProvider creates a synthetic data source with history
// warm-up bars per symbol at the given bar interval.
func NewSyntheticProvider(history int, interval time.Duration) *SyntheticProvider {
	if history < 1 {
		history = 60
	}
	return &SyntheticProvider{
		series:  make(map[string]*Series),
		start:   time.Now().UTC().Add(-time.Duration(history) * interval),
		step:    interval,
		history: history,
	}
}

func symbolSeed(symbol string) int64 {
	var seed int64 = 1469598103934665603
	for _, c := range symbol {
		seed ^= int64(c)
		seed *= 1099511628211
	}
	return seed
}

func (p *SyntheticProvider) ensure(symbol string) *Series {
	if s, ok := p.series[symbol]; ok {
		return s
	}
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))
	s := &Series{Symbol: symbol}
	price := 50.0 + rng.Float64()*150.0
	ts := p.start
	for i := 0; i < p.history; i++ {
		price, ts = appendWalkBar(s, rng, price, ts, p.step)
	}
	p.series[symbol] = s
	return s
}

func appendWalkBar(s *Series, rng *rand.Rand, price float64, ts time.Time, step time.Duration) (float64, time.Time) {
	drift := rng.NormFloat64() * 0.01 * price
	open := price
	close := math.Max(1.0, price+drift)
	high := math.Max(open, close) * (1 + rng.Float64()*0.005)
	low := math.Min(open, close) * (1 - rng.Float64()*0.005)
	s.Append(Bar{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    1e5 + rng.Float64()*9e5,
	})
	return close, ts.Add(step)
}

// Advance appends one new bar per known symbol, simulating the arrival
// of the next interval's data.
func (p *SyntheticProvider) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for symbol, s := range p.series {
		rng := rand.New(rand.NewSource(symbolSeed(symbol) ^ int64(s.Len())))
		last := s.Last()
		appendWalkBar(s, rng, last.Close, last.Timestamp.Add(p.step), p.step)
	}
}

// DownloadBars returns a copy of each requested symbol's series
func (p *SyntheticProvider) DownloadBars(ctx context.Context, symbols []string, period, interval string) (map[string]*Series, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]*Series, len(symbols))
	for _, symbol := range symbols {
		src := p.ensure(symbol)
		cp := &Series{Symbol: symbol, Bars: make([]Bar, len(src.Bars))}
		copy(cp.Bars, src.Bars)
		out[symbol] = cp
	}
	return out, nil
}

// LatestPrice returns the most recent close for the symbol
func (p *SyntheticProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.ensure(symbol)
	if s.Len() == 0 {
		return 0, fmt.Errorf("no bars for symbol %s", symbol)
	}
	return s.Last().Close, nil
}
