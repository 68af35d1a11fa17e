package broker

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Side is the order direction
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType selects the matching rule
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// Order is an instruction to trade. Immutable once created; owned by
// the caller until submitted to the broker.
type Order struct {
	ID         string    `json:"id" db:"id"`
	Timestamp  time.Time `json:"ts" db:"ts"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Side       Side      `json:"side" db:"side"`
	Qty        int       `json:"qty" db:"qty"`
	Type       OrderType `json:"type" db:"type"`
	LimitPrice float64   `json:"limit_price,omitempty" db:"limit_price"`
	Tag        string    `json:"tag,omitempty" db:"tag"`
}

// NewOrder creates an order with a fresh short ID
func NewOrder(symbol string, side Side, qty int, orderType OrderType, limitPrice float64, tag string) Order {
	return Order{
		ID:         strings.Split(uuid.New().String(), "-")[0],
		Timestamp:  time.Now().UTC(),
		Symbol:     symbol,
		Side:       side,
		Qty:        qty,
		Type:       orderType,
		LimitPrice: limitPrice,
		Tag:        tag,
	}
}

// Fill records a successful execution. Produced exactly once per
// matched order; immutable; appended to the fills ledger.
type Fill struct {
	OrderID   string    `json:"order_id" db:"order_id"`
	Timestamp time.Time `json:"ts" db:"ts"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Side      Side      `json:"side" db:"side"`
	Qty       int       `json:"qty" db:"qty"`
	Price     float64   `json:"price" db:"price"`
	Fee       float64   `json:"fee" db:"fee"`
	Slippage  float64   `json:"slippage" db:"slippage"`
	Note      string    `json:"note,omitempty" db:"note"`
}

// Rejection is produced instead of a Fill when an order cannot execute.
// Orders never partially fill.
type Rejection struct {
	Order  Order  `json:"order"`
	Reason string `json:"reason"`
}

// Position tracks holdings in one symbol. Long-only: Qty >= 0 always.
// Mutated exclusively by the broker on fill.
type Position struct {
	Symbol      string   `json:"symbol" db:"symbol"`
	Qty         int      `json:"qty" db:"qty"`
	AvgPrice    float64  `json:"avg_price" db:"avg_price"`
	RealizedPnL float64  `json:"realized_pnl" db:"realized_pnl"`
	StopLoss    *float64 `json:"stop_loss,omitempty" db:"stop_loss"`
	TakeProfit  *float64 `json:"take_profit,omitempty" db:"take_profit"`
	OpenedAt    time.Time `json:"opened_at,omitempty" db:"opened_at"`
}

// Portfolio is the single trading session's account state. Cash and
// fees are mutated only by the broker; equity, market value, and
// unrealized P&L are derived, never stored.
type Portfolio struct {
	Cash      float64              `json:"cash"`
	Positions map[string]*Position `json:"positions"`
	FeesPaid  float64              `json:"fees_paid"`
}

// NewPortfolio creates a portfolio with the given starting cash
func NewPortfolio(startCash float64) *Portfolio {
	return &Portfolio{
		Cash:      startCash,
		Positions: make(map[string]*Position),
	}
}

// Position returns the position for symbol, or nil if flat
func (p *Portfolio) Position(symbol string) *Position {
	pos, ok := p.Positions[symbol]
	if !ok || pos.Qty == 0 {
		return nil
	}
	return pos
}

// MarketValue returns the total value of all positions at the given marks
func (p *Portfolio) MarketValue(marks map[string]float64) float64 {
	total := 0.0
	for symbol, pos := range p.Positions {
		total += float64(pos.Qty) * marks[symbol]
	}
	return total
}

// Equity returns cash plus position market value
func (p *Portfolio) Equity(marks map[string]float64) float64 {
	return p.Cash + p.MarketValue(marks)
}

// UnrealizedPnL returns open-position P&L at the given marks
func (p *Portfolio) UnrealizedPnL(marks map[string]float64) float64 {
	total := 0.0
	for symbol, pos := range p.Positions {
		if pos.Qty > 0 {
			total += float64(pos.Qty) * (marks[symbol] - pos.AvgPrice)
		}
	}
	return total
}

// RealizedPnL returns the sum of realized P&L across all positions
func (p *Portfolio) RealizedPnL() float64 {
	total := 0.0
	for _, pos := range p.Positions {
		total += pos.RealizedPnL
	}
	return total
}
