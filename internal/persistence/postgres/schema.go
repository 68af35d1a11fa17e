package postgres

// Append-only schema. Retention is handled by Prune on timestamp
// cutoffs; rows are never updated in place.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id          TEXT PRIMARY KEY,
		ts          TIMESTAMPTZ NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		qty         INTEGER NOT NULL,
		type        TEXT NOT NULL,
		limit_price DOUBLE PRECISION,
		tag         TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS fills (
		id       BIGSERIAL PRIMARY KEY,
		order_id TEXT NOT NULL,
		ts       TIMESTAMPTZ NOT NULL,
		symbol   TEXT NOT NULL,
		side     TEXT NOT NULL,
		qty      INTEGER NOT NULL,
		price    DOUBLE PRECISION NOT NULL,
		fee      DOUBLE PRECISION NOT NULL,
		slippage DOUBLE PRECISION NOT NULL,
		note     TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
		id             BIGSERIAL PRIMARY KEY,
		ts             TIMESTAMPTZ NOT NULL,
		cash           DOUBLE PRECISION NOT NULL,
		equity         DOUBLE PRECISION NOT NULL,
		unrealized_pnl DOUBLE PRECISION NOT NULL,
		fees_paid      DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS position_snapshots (
		id             BIGSERIAL PRIMARY KEY,
		ts             TIMESTAMPTZ NOT NULL,
		symbol         TEXT NOT NULL,
		qty            INTEGER NOT NULL,
		avg_price      DOUBLE PRECISION NOT NULL,
		last_price     DOUBLE PRECISION NOT NULL,
		unrealized_pnl DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS strategy_decisions (
		id           BIGSERIAL PRIMARY KEY,
		ts           TIMESTAMPTZ NOT NULL,
		symbol       TEXT NOT NULL,
		mode         TEXT NOT NULL,
		signal       INTEGER NOT NULL,
		confidence   DOUBLE PRECISION NOT NULL,
		votes        JSONB NOT NULL,
		weights      JSONB NOT NULL,
		explanations JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS regime_history (
		id             BIGSERIAL PRIMARY KEY,
		ts             TIMESTAMPTZ NOT NULL,
		symbol         TEXT NOT NULL,
		regime         TEXT NOT NULL,
		confidence     DOUBLE PRECISION NOT NULL,
		volatility     DOUBLE PRECISION NOT NULL,
		trend_strength DOUBLE PRECISION NOT NULL,
		metrics        JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS learning_state (
		id      BIGSERIAL PRIMARY KEY,
		ts      TIMESTAMPTZ NOT NULL,
		weights JSONB NOT NULL,
		params  JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fills_ts ON fills (ts)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_symbol_ts ON strategy_decisions (symbol, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_regime_symbol_ts ON regime_history (symbol, ts)`,
}
