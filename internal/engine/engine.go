package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/equityrun/equityrun/internal/broker"
	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/ensemble"
	"github.com/equityrun/equityrun/internal/market"
	"github.com/equityrun/equityrun/internal/persistence"
	"github.com/equityrun/equityrun/internal/regime"
	"github.com/equityrun/equityrun/internal/risk"
	"github.com/equityrun/equityrun/internal/schedule"
	"github.com/equityrun/equityrun/internal/strategy"
)

// Recorder receives operational metrics from the engine. The HTTP
// metrics registry implements it; tests use a no-op.
type Recorder interface {
	StepCompleted(duration time.Duration, symbols int)
	OrderFilled(symbol, side string)
	OrderRejected(symbol, reason string)
	EquityUpdated(equity float64)
	RegimeObserved(symbol, regimeName string)
}

// nopRecorder is used when no metrics sink is wired
type nopRecorder struct{}

func (nopRecorder) StepCompleted(time.Duration, int) {}
func (nopRecorder) OrderFilled(string, string)       {}
func (nopRecorder) OrderRejected(string, string)     {}
func (nopRecorder) EquityUpdated(float64)            {}
func (nopRecorder) RegimeObserved(string, string)    {}

// Engine drives the paper-trading loop: one step per time tick, each
// step processed to completion across all symbols before the next
// begins. Strategy evaluation and regime detection are pure and run in
// parallel per symbol; order submission and portfolio mutation are
// applied sequentially so each symbol sees a consistent account state
// and at most one order per symbol per step is ever produced.
type Engine struct {
	cfg      *config.Config
	provider market.SnapshotProvider
	stream   *market.QuoteStream

	strategies []strategy.Evaluator
	detector   *regime.Detector
	combiner   *ensemble.Combiner
	sizer      *risk.Sizer
	broker     *broker.PaperBroker
	repo       persistence.Repository
	sched      *schedule.Schedule
	recorder   Recorder

	mu          sync.Mutex
	stepCount   int
	entries     map[string]*entryContext
	pendScores  map[string][]float64
	lastRegime  map[string]regime.Regime
	barsHeld    map[string]int
	peakEquity  float64
	maxDD       float64
}

// entryContext remembers the decision that opened a position so trade
// outcomes can be attributed back to the strategies that voted for it.
type entryContext struct {
	EntryPrice float64
	Votes      map[string]int
}

// Option customizes engine construction
type Option func(*Engine)

// WithRecorder wires a metrics sink
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithStream overlays streamed quotes on top of provider prices
func WithStream(qs *market.QuoteStream) Option {
	return func(e *Engine) { e.stream = qs }
}

// WithSchedule replaces the default step schedule
func WithSchedule(s *schedule.Schedule) Option {
	return func(e *Engine) { e.sched = s }
}

// New assembles an engine from its collaborators. The repository must
// already be initialized; a nil repo is a programming error, use the
// in-memory repository for tests and backtests.
func New(cfg *config.Config, provider market.SnapshotProvider, repo persistence.Repository, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("engine requires a persistence repository")
	}
	if provider == nil {
		return nil, fmt.Errorf("engine requires a market data provider")
	}

	params := make(map[string]map[string]float64, len(cfg.Strategy))
	for name, p := range cfg.Strategy {
		params[name] = p
	}

	e := &Engine{
		cfg:        cfg,
		provider:   provider,
		strategies: strategy.SetFromParams(params),
		detector:   regime.NewDetectorWithConfig(cfg.Regime),
		combiner:   ensemble.NewCombiner(strategy.Names(), cfg.Ensemble),
		sizer:      risk.NewSizer(cfg.Risk),
		broker:     broker.NewPaperBroker(cfg.StartCash, cfg.Broker),
		repo:       repo,
		sched:      schedule.New(schedule.DefaultConfig()),
		recorder:   nopRecorder{},
		entries:    make(map[string]*entryContext),
		pendScores: make(map[string][]float64),
		lastRegime: make(map[string]regime.Regime),
		barsHeld:   make(map[string]int),
		peakEquity: cfg.StartCash,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.restoreLearningState(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Could not restore learning state, starting with uniform weights")
	}
	return e, nil
}

// Broker exposes the simulated broker, read-only for callers
func (e *Engine) Broker() *broker.PaperBroker {
	return e.broker
}

// Combiner exposes the ensemble state for reporting
func (e *Engine) Combiner() *ensemble.Combiner {
	return e.combiner
}

// restoreLearningState reloads checkpointed ensemble weights so
// learning survives restarts.
func (e *Engine) restoreLearningState(ctx context.Context) error {
	state, err := e.repo.LatestLearningState(ctx)
	if err != nil {
		return fmt.Errorf("load learning state: %w", err)
	}
	if state == nil {
		return nil
	}
	e.combiner.SetWeights(state.Weights)
	log.Info().Time("checkpoint", state.Timestamp).Msg("Restored ensemble weights from checkpoint")
	return nil
}

// Run executes up to iterations steps (0 = until ctx is cancelled),
// sleeping cooperatively between steps per the schedule. A step either
// completes or the whole run aborts; there is no mid-step cancellation.
func (e *Engine) Run(ctx context.Context, iterations int) error {
	for i := 0; iterations == 0 || i < iterations; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := e.Step(ctx); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}

		if iterations != 0 && i == iterations-1 {
			break
		}

		wait := e.sched.UntilNext(time.Now())
		log.Debug().Dur("wait", wait).Msg("Sleeping until next step")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
