package persistence

import (
	"context"
	"time"

	"github.com/equityrun/equityrun/internal/broker"
)

// TimeRange represents a time window for history queries
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// PortfolioSnapshot is the account state at the end of one step
type PortfolioSnapshot struct {
	Timestamp     time.Time `json:"ts" db:"ts"`
	Cash          float64   `json:"cash" db:"cash"`
	Equity        float64   `json:"equity" db:"equity"`
	UnrealizedPnL float64   `json:"unrealized_pnl" db:"unrealized_pnl"`
	FeesPaid      float64   `json:"fees_paid" db:"fees_paid"`
}

// PositionSnapshot is one open position at the end of one step
type PositionSnapshot struct {
	Timestamp     time.Time `json:"ts" db:"ts"`
	Symbol        string    `json:"symbol" db:"symbol"`
	Qty           int       `json:"qty" db:"qty"`
	AvgPrice      float64   `json:"avg_price" db:"avg_price"`
	LastPrice     float64   `json:"last_price" db:"last_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl" db:"unrealized_pnl"`
}

// StrategyDecisionEvent is an audit record of one blended decision
type StrategyDecisionEvent struct {
	Timestamp    time.Time          `json:"ts" db:"ts"`
	Symbol       string             `json:"symbol" db:"symbol"`
	Mode         string             `json:"mode" db:"mode"`
	Signal       int                `json:"signal" db:"signal"`
	Confidence   float64            `json:"confidence" db:"confidence"`
	Votes        map[string]int     `json:"votes"`
	Weights      map[string]float64 `json:"weights"`
	Explanations map[string]map[string]interface{} `json:"explanations"`
}

// RegimeHistoryEvent is an audit record of one regime classification
type RegimeHistoryEvent struct {
	Timestamp     time.Time              `json:"ts" db:"ts"`
	Symbol        string                 `json:"symbol" db:"symbol"`
	Regime        string                 `json:"regime" db:"regime"`
	Confidence    float64                `json:"confidence" db:"confidence"`
	Volatility    float64                `json:"volatility" db:"volatility"`
	TrendStrength float64                `json:"trend_strength" db:"trend_strength"`
	Metrics       map[string]interface{} `json:"metrics"`
}

// LearningStateEvent checkpoints the ensemble's learned weights
type LearningStateEvent struct {
	Timestamp time.Time          `json:"ts" db:"ts"`
	Weights   map[string]float64 `json:"weights"`
	Params    map[string]float64 `json:"params"`
}

// Repository is the durable append-only store for the engine's output.
// Schema is append-only; retention pruning operates on timestamp
// cutoffs and is never invoked mid-step.
type Repository interface {
	SaveOrder(ctx context.Context, order broker.Order) error
	SaveFill(ctx context.Context, fill broker.Fill) error
	SavePortfolioSnapshot(ctx context.Context, snap PortfolioSnapshot) error
	SavePositionSnapshot(ctx context.Context, snap PositionSnapshot) error
	SaveDecision(ctx context.Context, event StrategyDecisionEvent) error
	SaveRegime(ctx context.Context, event RegimeHistoryEvent) error
	SaveLearningState(ctx context.Context, event LearningStateEvent) error

	LatestLearningState(ctx context.Context) (*LearningStateEvent, error)
	ListFills(ctx context.Context, tr TimeRange) ([]broker.Fill, error)
	ListDecisions(ctx context.Context, symbol string, tr TimeRange) ([]StrategyDecisionEvent, error)

	// Prune deletes records older than the cutoff. Maintenance only,
	// never called from inside a step.
	Prune(ctx context.Context, cutoff time.Time) error

	Close() error
}
