package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/equityrun/equityrun/internal/broker"
)

// MemoryRepository is an in-process Repository used by backtests and
// tests. It honors the same append-only contract as the Postgres
// implementation.
type MemoryRepository struct {
	mu             sync.Mutex
	orders         []broker.Order
	fills          []broker.Fill
	portfolioSnaps []PortfolioSnapshot
	positionSnaps  []PositionSnapshot
	decisions      []StrategyDecisionEvent
	regimes        []RegimeHistoryEvent
	learning       []LearningStateEvent
}

// NewMemoryRepository creates an empty in-memory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) SaveOrder(ctx context.Context, order broker.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
	return nil
}

func (m *MemoryRepository) SaveFill(ctx context.Context, fill broker.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills = append(m.fills, fill)
	return nil
}

func (m *MemoryRepository) SavePortfolioSnapshot(ctx context.Context, snap PortfolioSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolioSnaps = append(m.portfolioSnaps, snap)
	return nil
}

func (m *MemoryRepository) SavePositionSnapshot(ctx context.Context, snap PositionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionSnaps = append(m.positionSnaps, snap)
	return nil
}

func (m *MemoryRepository) SaveDecision(ctx context.Context, event StrategyDecisionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, event)
	return nil
}

func (m *MemoryRepository) SaveRegime(ctx context.Context, event RegimeHistoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regimes = append(m.regimes, event)
	return nil
}

func (m *MemoryRepository) SaveLearningState(ctx context.Context, event LearningStateEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learning = append(m.learning, event)
	return nil
}

func (m *MemoryRepository) LatestLearningState(ctx context.Context) (*LearningStateEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.learning) == 0 {
		return nil, nil
	}
	latest := m.learning[len(m.learning)-1]
	return &latest, nil
}

func (m *MemoryRepository) ListFills(ctx context.Context, tr TimeRange) ([]broker.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []broker.Fill
	for _, f := range m.fills {
		if inRange(f.Timestamp, tr) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListDecisions(ctx context.Context, symbol string, tr TimeRange) ([]StrategyDecisionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StrategyDecisionEvent
	for _, d := range m.decisions {
		if d.Symbol == symbol && inRange(d.Timestamp, tr) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryRepository) Prune(ctx context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keepFills := m.fills[:0]
	for _, f := range m.fills {
		if !f.Timestamp.Before(cutoff) {
			keepFills = append(keepFills, f)
		}
	}
	m.fills = keepFills

	keepDecisions := m.decisions[:0]
	for _, d := range m.decisions {
		if !d.Timestamp.Before(cutoff) {
			keepDecisions = append(keepDecisions, d)
		}
	}
	m.decisions = keepDecisions
	return nil
}

func (m *MemoryRepository) Close() error { return nil }

// Orders returns every saved order, for assertions in tests
func (m *MemoryRepository) Orders() []broker.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]broker.Order, len(m.orders))
	copy(out, m.orders)
	return out
}

// PortfolioSnapshots returns every saved portfolio snapshot
func (m *MemoryRepository) PortfolioSnapshots() []PortfolioSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PortfolioSnapshot, len(m.portfolioSnaps))
	copy(out, m.portfolioSnaps)
	return out
}

// RegimeEvents returns every saved regime classification
func (m *MemoryRepository) RegimeEvents() []RegimeHistoryEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RegimeHistoryEvent, len(m.regimes))
	copy(out, m.regimes)
	return out
}

func inRange(ts time.Time, tr TimeRange) bool {
	if !tr.From.IsZero() && ts.Before(tr.From) {
		return false
	}
	if !tr.To.IsZero() && ts.After(tr.To) {
		return false
	}
	return true
}
