package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityrun/equityrun/internal/broker"
	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/market"
	"github.com/equityrun/equityrun/internal/persistence"
	"github.com/equityrun/equityrun/internal/schedule"
	"github.com/equityrun/equityrun/internal/strategy"
)

// fixedProvider serves a scripted series per symbol so tests control
// exactly what the strategies see.
type fixedProvider struct {
	mu     sync.Mutex
	series map[string]*market.Series
	quotes map[string]float64
	fail   bool
}

// setQuote overrides the latest quote independently of the bar history
func (p *fixedProvider) setQuote(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quotes == nil {
		p.quotes = make(map[string]float64)
	}
	p.quotes[symbol] = price
}

func (p *fixedProvider) set(symbol string, s *market.Series) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.series == nil {
		p.series = make(map[string]*market.Series)
	}
	p.series[symbol] = s
}

func (p *fixedProvider) DownloadBars(ctx context.Context, symbols []string, period, interval string) (map[string]*market.Series, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, fmt.Errorf("provider unavailable")
	}
	out := make(map[string]*market.Series, len(symbols))
	for _, symbol := range symbols {
		if s, ok := p.series[symbol]; ok {
			out[symbol] = s
		}
	}
	return out, nil
}

func (p *fixedProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if q, ok := p.quotes[symbol]; ok {
		return q, nil
	}
	if s, ok := p.series[symbol]; ok && s.Len() > 0 {
		return s.Last().Close, nil
	}
	return 0, fmt.Errorf("no data for %s", symbol)
}

func seriesOf(closes []float64) *market.Series {
	s := &market.Series{}
	base := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Append(market.Bar{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
			Volume:    1_000_000,
		})
	}
	return s
}

// upSeries trends 1% per bar: momentum and breakout both vote long
func upSeries(n int) *market.Series {
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		closes[i] = price
		price *= 1.01
	}
	return seriesOf(closes)
}

// downSeries declines steadily: the blended decision is flat
func downSeries(n int) *market.Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 200.0 - float64(i)
	}
	return seriesOf(closes)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Symbols = []string{"AAPL"}
	// Frictionless fills keep cash arithmetic exact in assertions
	cfg.Broker = broker.Config{}
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, provider market.SnapshotProvider, repo persistence.Repository) *Engine {
	t.Helper()
	eng, err := New(cfg, provider, repo,
		WithSchedule(schedule.New(schedule.Config{BarInterval: time.Nanosecond, MarketHoursOnly: false})))
	require.NoError(t, err)
	return eng
}

func TestEngine_StrategyParamsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy = map[string]config.ParamMap{
		"momentum":       {"fast_period": 5, "slow_period": 15},
		"mean_reversion": {"entry_z": 2.5},
	}
	eng := newTestEngine(t, cfg, &fixedProvider{}, persistence.NewMemoryRepository())

	var sawMomentum, sawMeanRev bool
	for _, e := range eng.strategies {
		switch s := e.(type) {
		case *strategy.Momentum:
			sawMomentum = true
			assert.Equal(t, 5, s.FastPeriod)
			assert.Equal(t, 15, s.SlowPeriod)
		case *strategy.MeanReversion:
			sawMeanRev = true
			assert.Equal(t, 2.5, s.EntryZ)
		}
	}
	assert.True(t, sawMomentum)
	assert.True(t, sawMeanRev)
}

func TestEngine_MarkRefreshUsesProviderQuote(t *testing.T) {
	provider := &fixedProvider{}
	provider.set("AAPL", downSeries(40))
	provider.setQuote("AAPL", 123.45)
	eng := newTestEngine(t, testConfig(), provider, persistence.NewMemoryRepository())

	require.NoError(t, eng.Step(context.Background()))

	// The mark comes from the provider's quote path, not the bar close
	assert.Equal(t, 123.45, eng.Broker().Mark("AAPL"))
}

func TestEngine_EntersLongOnUptrend(t *testing.T) {
	provider := &fixedProvider{}
	provider.set("AAPL", upSeries(40))
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, testConfig(), provider, repo)
	ctx := context.Background()

	require.NoError(t, eng.Step(ctx))

	pos := eng.Broker().Portfolio().Position("AAPL")
	require.NotNil(t, pos)
	assert.Greater(t, pos.Qty, 0)
	require.NotNil(t, pos.StopLoss)
	require.NotNil(t, pos.TakeProfit)
	assert.Less(t, *pos.StopLoss, pos.AvgPrice)
	assert.Greater(t, *pos.TakeProfit, pos.AvgPrice)

	orders := repo.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, broker.Buy, orders[0].Side)
	assert.Equal(t, "entry", orders[0].Tag)

	decisions, err := repo.ListDecisions(ctx, "AAPL", persistence.TimeRange{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, 1, decisions[0].Signal)
	assert.Equal(t, "paper", decisions[0].Mode)
	assert.Equal(t, 1, decisions[0].Votes["momentum"])

	regimes := repo.RegimeEvents()
	require.Len(t, regimes, 1)
	assert.Equal(t, "trending_up", regimes[0].Regime)

	snaps := repo.PortfolioSnapshots()
	require.Len(t, snaps, 1)
	assert.InDelta(t, 100000.0, snaps[0].Equity, 1e-6)
}

func TestEngine_AtMostOneOrderPerSymbolPerStep(t *testing.T) {
	provider := &fixedProvider{}
	provider.set("AAPL", upSeries(40))
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, testConfig(), provider, repo)
	ctx := context.Background()

	require.NoError(t, eng.Step(ctx))
	require.Len(t, repo.Orders(), 1)

	// Signal still long, position already held: no pyramid entry
	require.NoError(t, eng.Step(ctx))
	require.NoError(t, eng.Step(ctx))
	assert.Len(t, repo.Orders(), 1)
}

func TestEngine_ExitsOnSignalFlip(t *testing.T) {
	provider := &fixedProvider{}
	provider.set("AAPL", upSeries(40))
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, testConfig(), provider, repo)
	ctx := context.Background()

	require.NoError(t, eng.Step(ctx))
	pos := eng.Broker().Portfolio().Position("AAPL")
	require.NotNil(t, pos)
	qty := pos.Qty

	provider.set("AAPL", downSeries(40))
	require.NoError(t, eng.Step(ctx))

	assert.Nil(t, eng.Broker().Portfolio().Position("AAPL"))

	orders := repo.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, broker.Sell, orders[1].Side)
	assert.Equal(t, qty, orders[1].Qty)
	assert.Equal(t, "signal_exit", orders[1].Tag)
}

func TestEngine_TakeProfitExit(t *testing.T) {
	provider := &fixedProvider{}
	provider.set("AAPL", upSeries(40))
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, testConfig(), provider, repo)
	ctx := context.Background()

	require.NoError(t, eng.Step(ctx))
	entry := eng.Broker().Portfolio().Position("AAPL").AvgPrice

	// Gap the whole series up past the take-profit level
	jumped := upSeries(40)
	for i := range jumped.Bars {
		jumped.Bars[i].Open *= 2
		jumped.Bars[i].High *= 2
		jumped.Bars[i].Low *= 2
		jumped.Bars[i].Close *= 2
	}
	provider.set("AAPL", jumped)
	require.NoError(t, eng.Step(ctx))

	assert.Nil(t, eng.Broker().Portfolio().Position("AAPL"))
	fills := eng.Broker().Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, "take_profit", fills[1].Note)
	assert.Greater(t, fills[1].Price, entry)
}

func TestEngine_ConfidenceGateForcesFlat(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.ConfidenceFloor = 0.99

	provider := &fixedProvider{}
	provider.set("AAPL", upSeries(40))
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, cfg, provider, repo)
	ctx := context.Background()

	require.NoError(t, eng.Step(ctx))

	assert.Nil(t, eng.Broker().Portfolio().Position("AAPL"))
	assert.Empty(t, repo.Orders())

	// The gated decision is still audited, recorded as flat
	decisions, err := repo.ListDecisions(ctx, "AAPL", persistence.TimeRange{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, 0, decisions[0].Signal)
}

func TestEngine_FetchFailureSkipsStep(t *testing.T) {
	provider := &fixedProvider{fail: true}
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, testConfig(), provider, repo)

	// A wholesale fetch failure skips the step without failing the run
	require.NoError(t, eng.Step(context.Background()))
	assert.Empty(t, repo.Orders())
	assert.Empty(t, repo.PortfolioSnapshots())
}

func TestEngine_MissingSymbolSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.Symbols = []string{"AAPL", "MISSING"}

	provider := &fixedProvider{}
	provider.set("AAPL", upSeries(40))
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, cfg, provider, repo)
	ctx := context.Background()

	require.NoError(t, eng.Step(ctx))

	// The symbol with data still trades; the other is skipped silently
	require.Len(t, repo.Orders(), 1)
	assert.Equal(t, "AAPL", repo.Orders()[0].Symbol)
}

func TestEngine_LearningCheckpointAndRestore(t *testing.T) {
	cfg := testConfig()
	cfg.LearnEverySteps = 1

	provider := &fixedProvider{}
	provider.set("AAPL", upSeries(40))
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, cfg, provider, repo)
	ctx := context.Background()

	require.NoError(t, eng.Step(ctx))
	provider.set("AAPL", downSeries(40))
	require.NoError(t, eng.Step(ctx))

	// The closed trade fed a learning pass which was checkpointed
	state, err := repo.LatestLearningState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)

	total := 0.0
	for _, w := range state.Weights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Equal(t, cfg.Ensemble.LearningRate, state.Params["learning_rate"])

	// A fresh engine against the same repository resumes those weights
	eng2 := newTestEngine(t, cfg, provider, repo)
	restored := eng2.Combiner().Weights()
	require.Len(t, restored, len(state.Weights))
	for name, w := range state.Weights {
		assert.InDelta(t, w, restored[name], 1e-9, name)
	}
}

func TestEngine_RunIterations(t *testing.T) {
	provider := &fixedProvider{}
	provider.set("AAPL", upSeries(40))
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, testConfig(), provider, repo)

	require.NoError(t, eng.Run(context.Background(), 3))
	assert.Len(t, repo.PortfolioSnapshots(), 3)
}

func TestEngine_RunHonorsCancellation(t *testing.T) {
	provider := &fixedProvider{}
	provider.set("AAPL", upSeries(40))
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, testConfig(), provider, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, eng.Run(ctx, 0), context.Canceled)
}

func TestEngine_BuildReport(t *testing.T) {
	provider := &fixedProvider{}
	provider.set("AAPL", upSeries(40))
	repo := persistence.NewMemoryRepository()
	eng := newTestEngine(t, testConfig(), provider, repo)
	ctx := context.Background()

	require.NoError(t, eng.Step(ctx))

	// Double the market and exit on take-profit: a winning round trip
	jumped := upSeries(40)
	for i := range jumped.Bars {
		jumped.Bars[i].Open *= 2
		jumped.Bars[i].High *= 2
		jumped.Bars[i].Low *= 2
		jumped.Bars[i].Close *= 2
	}
	provider.set("AAPL", jumped)
	require.NoError(t, eng.Step(ctx))

	report, err := eng.BuildReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, report.StartCash)
	assert.Greater(t, report.FinalEquity, report.StartCash)
	assert.Greater(t, report.TotalReturn, 0.0)
	assert.Greater(t, report.RealizedPnL, 0.0)
	assert.Equal(t, 1, report.Trades)
	assert.Equal(t, 1.0, report.WinRate)

	text := report.String()
	assert.Contains(t, text, "Final equity")
	assert.Contains(t, text, "Win rate")
}

func TestEngine_RequiresCollaborators(t *testing.T) {
	provider := &fixedProvider{}
	_, err := New(testConfig(), provider, nil)
	assert.Error(t, err)

	_, err = New(testConfig(), nil, persistence.NewMemoryRepository())
	assert.Error(t, err)
}

func TestBarVolatility(t *testing.T) {
	assert.Equal(t, 0.0, barVolatility(nil, 14))
	assert.Equal(t, 0.0, barVolatility(&market.Series{}, 14))

	s := upSeries(40)
	v := barVolatility(s, 14)
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, 1.0)
}
