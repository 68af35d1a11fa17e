package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/equityrun/equityrun/internal/market"
	"github.com/equityrun/equityrun/internal/persistence"
	"github.com/equityrun/equityrun/internal/strategy"
)

// recordOutcome converts a closed trade into per-strategy scores and
// queues them for the next learning pass. A strategy that voted long
// is credited the trade's return; one that voted flat is credited the
// negated return, so staying out of losers earns weight too.
func (e *Engine) recordOutcome(symbol string, exitPrice float64) {
	entry, ok := e.entries[symbol]
	if !ok || entry.EntryPrice <= 0 {
		return
	}
	delete(e.entries, symbol)

	tradeReturn := (exitPrice - entry.EntryPrice) / entry.EntryPrice
	for name, vote := range entry.Votes {
		score := tradeReturn
		if vote == strategy.SignalFlat {
			score = -tradeReturn
		}
		e.pendScores[name] = append(e.pendScores[name], score)
	}
}

// learn feeds accumulated trade outcomes into the ensemble's
// exponential-weights update and checkpoints the learned state.
func (e *Engine) learn(ctx context.Context) {
	if len(e.pendScores) == 0 {
		return
	}

	scores := make(map[string]float64, len(e.pendScores))
	for name, vals := range e.pendScores {
		if len(vals) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		scores[name] = sum / float64(len(vals))
	}
	e.pendScores = make(map[string][]float64)

	if len(scores) == 0 {
		return
	}

	e.combiner.Update(scores)
	log.Info().Interface("scores", scores).Interface("weights", e.combiner.Weights()).
		Msg("Ensemble weights updated")

	event := persistence.LearningStateEvent{
		Timestamp: time.Now().UTC(),
		Weights:   e.combiner.Weights(),
		Params: map[string]float64{
			"learning_rate": e.cfg.Ensemble.LearningRate,
			"score_clip":    e.cfg.Ensemble.ScoreClip,
		},
	}
	if err := e.repo.SaveLearningState(ctx, event); err != nil {
		log.Error().Err(err).Msg("Failed to checkpoint learning state")
	}
}

// barVolatility is the sizer's recent-volatility estimate: ATR relative
// to the latest close, scaled to a monthly horizon so the 10% sizing
// reference is meaningful for daily bars.
func barVolatility(series *market.Series, atrPeriod int) float64 {
	if series == nil || series.Len() == 0 {
		return 0
	}
	last := series.Last().Close
	if last <= 0 {
		return 0
	}
	return series.ATR(atrPeriod) / last * 4.58 // sqrt(21)
}
