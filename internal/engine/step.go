package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/equityrun/equityrun/internal/broker"
	"github.com/equityrun/equityrun/internal/ensemble"
	"github.com/equityrun/equityrun/internal/market"
	"github.com/equityrun/equityrun/internal/persistence"
	"github.com/equityrun/equityrun/internal/regime"
	"github.com/equityrun/equityrun/internal/strategy"
)

// symbolPlan is the pure-computation result for one symbol in a step:
// everything decided before any portfolio mutation happens.
type symbolPlan struct {
	Symbol   string
	Series   *market.Series
	Mark     float64
	Outputs  map[string]strategy.Output
	Regime   regime.State
	Decision ensemble.Decision
	Skip     bool
	SkipWhy  string
}

// Step runs one full orchestration pass: fetch all data (barrier),
// compute decisions per symbol in parallel, then apply trades and
// persistence sequentially.
func (e *Engine) Step(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.stepCount++

	histories, err := e.fetchAll(ctx)
	if err != nil {
		// A wholesale fetch failure skips the step, not the run
		log.Error().Err(err).Int("step", e.stepCount).Msg("Data fetch failed, skipping step")
		return nil
	}

	plans := e.computePlans(histories)

	for _, plan := range plans {
		if plan.Skip {
			log.Warn().Str("symbol", plan.Symbol).Str("reason", plan.SkipWhy).Msg("Skipping symbol for step")
			continue
		}
		e.applyPlan(ctx, plan)
	}

	e.persistPortfolio(ctx)

	if e.stepCount%e.cfg.LearnEverySteps == 0 {
		e.learn(ctx)
	}

	e.recorder.StepCompleted(time.Since(start), len(plans))
	log.Info().Int("step", e.stepCount).Int("symbols", len(plans)).
		Float64("equity", e.broker.Portfolio().Equity(e.broker.Marks())).
		Dur("took", time.Since(start)).Msg("Step complete")
	return nil
}

// fetchAll downloads histories for every configured symbol with a
// bounded timeout, then refreshes mark prices. The call is the step's
// barrier: all fetches settle before any decision is computed.
func (e *Engine) fetchAll(ctx context.Context) (map[string]*market.Series, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	histories, err := e.provider.DownloadBars(fetchCtx, e.cfg.Symbols, e.cfg.Period, e.cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("download bars: %w", err)
	}

	for _, symbol := range e.cfg.Symbols {
		series, ok := histories[symbol]
		if !ok || series.Len() == 0 {
			continue
		}
		mark := series.Last().Close

		// The provider quote goes through the cache tier and may be
		// fresher than the last bar close; a failed lookup falls back to
		// the bar close rather than skipping the symbol
		if quote, qerr := e.provider.LatestPrice(fetchCtx, symbol); qerr == nil && quote > 0 {
			mark = quote
		} else if qerr != nil {
			log.Debug().Err(qerr).Str("symbol", symbol).Msg("Quote refresh failed, using bar close")
		}

		// Streamed quotes freshen the mark between bar closes
		if e.stream != nil {
			if tick, ok := e.stream.Latest(symbol); ok && tick.Timestamp.After(series.Last().Timestamp) {
				mark = tick.Price
			}
		}
		e.broker.SetPrice(symbol, mark)
	}
	return histories, nil
}

// computePlans runs the pure per-symbol pipeline (strategies, regime,
// ensemble) across workers. No shared state is touched here.
func (e *Engine) computePlans(histories map[string]*market.Series) []*symbolPlan {
	plans := make([]*symbolPlan, len(e.cfg.Symbols))
	var wg sync.WaitGroup

	for i, symbol := range e.cfg.Symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			plans[i] = e.computePlan(symbol, histories[symbol])
		}(i, symbol)
	}
	wg.Wait()
	return plans
}

func (e *Engine) computePlan(symbol string, series *market.Series) *symbolPlan {
	plan := &symbolPlan{Symbol: symbol, Series: series}

	if series == nil || series.Len() == 0 {
		plan.Skip = true
		plan.SkipWhy = "no data for step"
		return plan
	}
	plan.Mark = e.broker.Mark(symbol)
	if plan.Mark <= 0 {
		plan.Skip = true
		plan.SkipWhy = "no mark price"
		return plan
	}

	outputs := make(map[string]strategy.Output, len(e.strategies))
	for _, s := range e.strategies {
		outputs[s.Name()] = strategy.SafeEvaluate(s, series)
	}
	plan.Outputs = outputs

	plan.Regime = e.detector.Detect(series)

	// Regime-adjusted weights apply to this decision only; the learned
	// weights are never overwritten by the blend.
	weights := e.combiner.RegimeAdjusted(plan.Regime)
	plan.Decision = e.combiner.Combine(symbol, outputs, weights)

	// Confidence gate: below the floor the decision is forced flat
	if plan.Decision.Signal == strategy.SignalLong && !e.sizer.Passes(plan.Decision.Confidence) {
		plan.Decision.Signal = strategy.SignalFlat
	}
	return plan
}

// applyPlan turns one symbol's decision into at most one order and
// records the audit trail. Runs sequentially under the engine lock.
func (e *Engine) applyPlan(ctx context.Context, plan *symbolPlan) {
	symbol := plan.Symbol
	pos := e.broker.Portfolio().Position(symbol)
	held := pos != nil

	if prev, ok := e.lastRegime[symbol]; !ok || prev != plan.Regime.Regime {
		e.recorder.RegimeObserved(symbol, plan.Regime.Regime.String())
	}
	e.lastRegime[symbol] = plan.Regime.Regime

	switch {
	case held:
		e.barsHeld[symbol]++
		if reason, exit := e.exitReason(plan, pos); exit {
			e.submitSell(ctx, plan, pos, reason)
		} else if plan.Decision.Signal == strategy.SignalFlat {
			e.submitSell(ctx, plan, pos, "signal_exit")
		}
	case plan.Decision.Signal == strategy.SignalLong:
		e.submitBuy(ctx, plan)
	}

	e.persistDecision(ctx, plan)
}

// exitReason checks stop-loss, take-profit, and max-hold breaches
func (e *Engine) exitReason(plan *symbolPlan, pos *broker.Position) (string, bool) {
	if pos.StopLoss != nil && plan.Mark <= *pos.StopLoss {
		return "stop_loss", true
	}
	if pos.TakeProfit != nil && plan.Mark >= *pos.TakeProfit {
		return "take_profit", true
	}
	if max := e.sizer.MaxHoldBars(); max > 0 && e.barsHeld[plan.Symbol] >= max {
		return "max_hold", true
	}
	return "", false
}

func (e *Engine) submitBuy(ctx context.Context, plan *symbolPlan) {
	marks := e.broker.Marks()
	portfolio := e.broker.Portfolio()
	equity := portfolio.Equity(marks)

	stopLoss := e.sizer.StopLossPrice(plan.Mark)
	recentVol := barVolatility(plan.Series, e.cfg.Regime.ATRPeriod)
	qty := e.sizer.Shares(equity, plan.Mark, stopLoss, recentVol, plan.Decision.Confidence)
	if qty <= 0 {
		return
	}

	// Limit breaches mean the order is never created
	notional := float64(qty) * plan.Mark
	gross := portfolio.MarketValue(marks)
	if err := e.sizer.CheckLimits(notional, 0, gross, equity); err != nil {
		log.Debug().Str("symbol", plan.Symbol).Err(err).Msg("Order suppressed by risk limits")
		return
	}

	order := broker.NewOrder(plan.Symbol, broker.Buy, qty, broker.Market, 0, "entry")
	e.persistOrder(ctx, order)

	fill, rejection := e.broker.SubmitOrder(order)
	if rejection != nil {
		e.recorder.OrderRejected(plan.Symbol, rejection.Reason)
		log.Warn().Str("symbol", plan.Symbol).Str("reason", rejection.Reason).Msg("Buy rejected")
		return
	}

	takeProfit := e.sizer.TakeProfitPrice(fill.Price)
	sl := e.sizer.StopLossPrice(fill.Price)
	e.broker.SetStops(plan.Symbol, &sl, &takeProfit)
	e.barsHeld[plan.Symbol] = 0
	e.entries[plan.Symbol] = &entryContext{EntryPrice: fill.Price, Votes: plan.Decision.Votes}

	e.recorder.OrderFilled(plan.Symbol, string(broker.Buy))
	e.persistFill(ctx, *fill)
}

func (e *Engine) submitSell(ctx context.Context, plan *symbolPlan, pos *broker.Position, reason string) {
	order := broker.NewOrder(plan.Symbol, broker.Sell, pos.Qty, broker.Market, 0, reason)
	e.persistOrder(ctx, order)

	fill, rejection := e.broker.SubmitOrder(order)
	if rejection != nil {
		e.recorder.OrderRejected(plan.Symbol, rejection.Reason)
		log.Warn().Str("symbol", plan.Symbol).Str("reason", rejection.Reason).Msg("Sell rejected")
		return
	}

	e.recordOutcome(plan.Symbol, fill.Price)
	delete(e.barsHeld, plan.Symbol)

	e.recorder.OrderFilled(plan.Symbol, string(broker.Sell))
	e.persistFill(ctx, *fill)
	log.Info().Str("symbol", plan.Symbol).Str("reason", reason).
		Float64("price", fill.Price).Int("qty", fill.Qty).Msg("Position closed")
}

// Persistence failures are logged and skipped, never fatal mid-run

func (e *Engine) persistOrder(ctx context.Context, order broker.Order) {
	if err := e.repo.SaveOrder(ctx, order); err != nil {
		log.Error().Err(err).Str("order", order.ID).Msg("Failed to persist order")
	}
}

func (e *Engine) persistFill(ctx context.Context, fill broker.Fill) {
	if err := e.repo.SaveFill(ctx, fill); err != nil {
		log.Error().Err(err).Str("order", fill.OrderID).Msg("Failed to persist fill")
	}
}

func (e *Engine) persistDecision(ctx context.Context, plan *symbolPlan) {
	now := time.Now().UTC()

	decisionEvent := persistence.StrategyDecisionEvent{
		Timestamp:    now,
		Symbol:       plan.Symbol,
		Mode:         "paper",
		Signal:       plan.Decision.Signal,
		Confidence:   plan.Decision.Confidence,
		Votes:        plan.Decision.Votes,
		Weights:      plan.Decision.Weights,
		Explanations: plan.Decision.Explanations,
	}
	if err := e.repo.SaveDecision(ctx, decisionEvent); err != nil {
		log.Error().Err(err).Str("symbol", plan.Symbol).Msg("Failed to persist decision")
	}

	regimeEvent := persistence.RegimeHistoryEvent{
		Timestamp:     now,
		Symbol:        plan.Symbol,
		Regime:        plan.Regime.Regime.String(),
		Confidence:    plan.Regime.Confidence,
		Volatility:    plan.Regime.Volatility,
		TrendStrength: plan.Regime.TrendStrength,
		Metrics:       plan.Regime.Explanation,
	}
	if err := e.repo.SaveRegime(ctx, regimeEvent); err != nil {
		log.Error().Err(err).Str("symbol", plan.Symbol).Msg("Failed to persist regime")
	}
}

func (e *Engine) persistPortfolio(ctx context.Context) {
	now := time.Now().UTC()
	marks := e.broker.Marks()
	portfolio := e.broker.Portfolio()

	equity := portfolio.Equity(marks)
	e.recorder.EquityUpdated(equity)

	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	if e.peakEquity > 0 {
		if dd := (e.peakEquity - equity) / e.peakEquity; dd > e.maxDD {
			e.maxDD = dd
		}
	}

	snap := persistence.PortfolioSnapshot{
		Timestamp:     now,
		Cash:          portfolio.Cash,
		Equity:        equity,
		UnrealizedPnL: portfolio.UnrealizedPnL(marks),
		FeesPaid:      portfolio.FeesPaid,
	}
	if err := e.repo.SavePortfolioSnapshot(ctx, snap); err != nil {
		log.Error().Err(err).Msg("Failed to persist portfolio snapshot")
	}

	for symbol, pos := range portfolio.Positions {
		if pos.Qty == 0 {
			continue
		}
		posSnap := persistence.PositionSnapshot{
			Timestamp:     now,
			Symbol:        symbol,
			Qty:           pos.Qty,
			AvgPrice:      pos.AvgPrice,
			LastPrice:     marks[symbol],
			UnrealizedPnL: float64(pos.Qty) * (marks[symbol] - pos.AvgPrice),
		}
		if err := e.repo.SavePositionSnapshot(ctx, posSnap); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Failed to persist position snapshot")
		}
	}
}
