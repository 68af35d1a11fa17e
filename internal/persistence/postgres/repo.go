package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/equityrun/equityrun/internal/broker"
	"github.com/equityrun/equityrun/internal/persistence"
)

// Repository implements persistence.Repository against PostgreSQL.
// All tables are append-only; Prune is the only deleting operation.
type Repository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Connect opens a Postgres connection, applies the schema, and returns
// a ready repository. A failure here is fatal at startup per the error
// taxonomy: the engine never runs without a working store.
func Connect(ctx context.Context, dsn string, timeout time.Duration) (*Repository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, timeout: timeout}
	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return repo, nil
}

// NewRepository wraps an existing connection, for tests
func NewRepository(db *sqlx.DB, timeout time.Duration) *Repository {
	return &Repository{db: db, timeout: timeout}
}

func (r *Repository) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// SaveOrder appends one order record
func (r *Repository) SaveOrder(ctx context.Context, order broker.Order) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO orders (id, ts, symbol, side, qty, type, limit_price, tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		order.ID, order.Timestamp, order.Symbol, order.Side,
		order.Qty, order.Type, order.LimitPrice, order.Tag)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// SaveFill appends one fill record
func (r *Repository) SaveFill(ctx context.Context, fill broker.Fill) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO fills (order_id, ts, symbol, side, qty, price, fee, slippage, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		fill.OrderID, fill.Timestamp, fill.Symbol, fill.Side,
		fill.Qty, fill.Price, fill.Fee, fill.Slippage, fill.Note)
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}
	return nil
}

// SavePortfolioSnapshot appends one end-of-step account snapshot
func (r *Repository) SavePortfolioSnapshot(ctx context.Context, snap persistence.PortfolioSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO portfolio_snapshots (ts, cash, equity, unrealized_pnl, fees_paid)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		snap.Timestamp, snap.Cash, snap.Equity, snap.UnrealizedPnL, snap.FeesPaid)
	if err != nil {
		return fmt.Errorf("failed to insert portfolio snapshot: %w", err)
	}
	return nil
}

// SavePositionSnapshot appends one end-of-step position snapshot
func (r *Repository) SavePositionSnapshot(ctx context.Context, snap persistence.PositionSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO position_snapshots (ts, symbol, qty, avg_price, last_price, unrealized_pnl)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		snap.Timestamp, snap.Symbol, snap.Qty, snap.AvgPrice, snap.LastPrice, snap.UnrealizedPnL)
	if err != nil {
		return fmt.Errorf("failed to insert position snapshot: %w", err)
	}
	return nil
}

// SaveDecision appends one blended-decision audit record
func (r *Repository) SaveDecision(ctx context.Context, event persistence.StrategyDecisionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	votesJSON, err := json.Marshal(event.Votes)
	if err != nil {
		return fmt.Errorf("failed to marshal votes: %w", err)
	}
	weightsJSON, err := json.Marshal(event.Weights)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	explanationsJSON, err := json.Marshal(event.Explanations)
	if err != nil {
		return fmt.Errorf("failed to marshal explanations: %w", err)
	}

	query := `
		INSERT INTO strategy_decisions (ts, symbol, mode, signal, confidence, votes, weights, explanations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		event.Timestamp, event.Symbol, event.Mode, event.Signal,
		event.Confidence, votesJSON, weightsJSON, explanationsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// SaveRegime appends one regime classification record
func (r *Repository) SaveRegime(ctx context.Context, event persistence.RegimeHistoryEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	metricsJSON, err := json.Marshal(event.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal regime metrics: %w", err)
	}

	query := `
		INSERT INTO regime_history (ts, symbol, regime, confidence, volatility, trend_strength, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		event.Timestamp, event.Symbol, event.Regime, event.Confidence,
		event.Volatility, event.TrendStrength, metricsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert regime event: %w", err)
	}
	return nil
}

// SaveLearningState checkpoints the ensemble weights
func (r *Repository) SaveLearningState(ctx context.Context, event persistence.LearningStateEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	weightsJSON, err := json.Marshal(event.Weights)
	if err != nil {
		return fmt.Errorf("failed to marshal learning weights: %w", err)
	}
	paramsJSON, err := json.Marshal(event.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal learning params: %w", err)
	}

	query := `
		INSERT INTO learning_state (ts, weights, params)
		VALUES ($1, $2, $3)`

	_, err = r.db.ExecContext(ctx, query, event.Timestamp, weightsJSON, paramsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert learning state: %w", err)
	}
	return nil
}

// LatestLearningState returns the most recent weights checkpoint, or
// nil when no checkpoint exists yet.
func (r *Repository) LatestLearningState(ctx context.Context) (*persistence.LearningStateEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, weights, params
		FROM learning_state
		ORDER BY ts DESC
		LIMIT 1`

	var event persistence.LearningStateEvent
	var weightsJSON, paramsJSON []byte

	err := r.db.QueryRowxContext(ctx, query).Scan(&event.Timestamp, &weightsJSON, &paramsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest learning state: %w", err)
	}

	if err := json.Unmarshal(weightsJSON, &event.Weights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal learning weights: %w", err)
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &event.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal learning params: %w", err)
		}
	}
	return &event, nil
}

// bounds resolves a time range for SQL comparison: a zero To means
// unbounded, matching the in-memory repository's semantics.
func bounds(tr persistence.TimeRange) (time.Time, time.Time) {
	to := tr.To
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}
	return tr.From, to
}

// ListFills returns the fills ledger within a time window
func (r *Repository) ListFills(ctx context.Context, tr persistence.TimeRange) ([]broker.Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT order_id, ts, symbol, side, qty, price, fee, slippage, note
		FROM fills
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts ASC`

	from, to := bounds(tr)
	rows, err := r.db.QueryxContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []broker.Fill
	for rows.Next() {
		var f broker.Fill
		if err := rows.Scan(&f.OrderID, &f.Timestamp, &f.Symbol, &f.Side,
			&f.Qty, &f.Price, &f.Fee, &f.Slippage, &f.Note); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fills: %w", err)
	}
	return fills, nil
}

// ListDecisions returns decision audit records for one symbol
func (r *Repository) ListDecisions(ctx context.Context, symbol string, tr persistence.TimeRange) ([]persistence.StrategyDecisionEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, symbol, mode, signal, confidence, votes, weights, explanations
		FROM strategy_decisions
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC`

	from, to := bounds(tr)
	rows, err := r.db.QueryxContext(ctx, query, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var events []persistence.StrategyDecisionEvent
	for rows.Next() {
		var event persistence.StrategyDecisionEvent
		var votesJSON, weightsJSON, explanationsJSON []byte

		if err := rows.Scan(&event.Timestamp, &event.Symbol, &event.Mode,
			&event.Signal, &event.Confidence, &votesJSON, &weightsJSON, &explanationsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		if err := json.Unmarshal(votesJSON, &event.Votes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal votes: %w", err)
		}
		if err := json.Unmarshal(weightsJSON, &event.Weights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
		}
		if err := json.Unmarshal(explanationsJSON, &event.Explanations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal explanations: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}
	return events, nil
}

// Prune deletes records older than the cutoff from every event table.
// Maintenance only; never invoked mid-step.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tables := []string{
		"orders", "fills", "portfolio_snapshots", "position_snapshots",
		"strategy_decisions", "regime_history", "learning_state",
	}
	for _, table := range tables {
		query := fmt.Sprintf("DELETE FROM %s WHERE ts < $1", table)
		if _, err := r.db.ExecContext(ctx, query, cutoff); err != nil {
			return fmt.Errorf("failed to prune %s: %w", table, err)
		}
	}
	return nil
}

// Close releases the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
