package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds fill simulation parameters
type Config struct {
	SlippageBps   float64 `yaml:"slippage_bps"`   // Default: 0
	CommissionBps float64 `yaml:"commission_bps"` // Default: 0
	MinFee        float64 `yaml:"min_fee"`        // Default: 0, commission floor per fill
}

// PaperBroker simulates synchronous order matching against mark prices.
// Every submitted order terminates immediately as a Fill or a
// Rejection: no partial fills, no resting orders. Shorting is forbidden
// by construction, a SELL beyond the held quantity is always a hard
// rejection.
type PaperBroker struct {
	mu        sync.Mutex
	config    Config
	portfolio *Portfolio
	marks     map[string]float64
	fills     []Fill
}

// NewPaperBroker creates a broker with the given starting cash
func NewPaperBroker(startCash float64, config Config) *PaperBroker {
	return &PaperBroker{
		config:    config,
		portfolio: NewPortfolio(startCash),
		marks:     make(map[string]float64),
	}
}

// SetPrice updates the mark price used to evaluate fills for a symbol
func (b *PaperBroker) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks[symbol] = price
}

// Mark returns the current mark price for a symbol, 0 if unset
func (b *PaperBroker) Mark(symbol string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.marks[symbol]
}

// Marks returns a copy of all current mark prices
func (b *PaperBroker) Marks() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.marks))
	for k, v := range b.marks {
		out[k] = v
	}
	return out
}

// Portfolio returns the broker-owned portfolio. Callers must treat it
// as read-only; all mutation happens through SubmitOrder.
func (b *PaperBroker) Portfolio() *Portfolio {
	return b.portfolio
}

// Fills returns a copy of the fills ledger
func (b *PaperBroker) Fills() []Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Fill, len(b.fills))
	copy(out, b.fills)
	return out
}

// SubmitOrder matches an order against the current mark. The call is
// synchronous and terminal: it returns exactly one of a Fill or a
// Rejection.
func (b *PaperBroker) SubmitOrder(order Order) (*Fill, *Rejection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if order.Qty <= 0 {
		return nil, b.reject(order, fmt.Sprintf("invalid qty %d", order.Qty))
	}

	mark, ok := b.marks[order.Symbol]
	if !ok || mark <= 0 {
		return nil, b.reject(order, fmt.Sprintf("no mark price for %s", order.Symbol))
	}

	var fillPrice float64
	switch order.Type {
	case Limit:
		if order.LimitPrice <= 0 {
			return nil, b.reject(order, "limit order missing limit price")
		}
		// Marketable check: mark must be at or better than the limit
		// for the order's side. Fill at mark exactly, no improvement.
		if order.Side == Buy && mark > order.LimitPrice {
			return nil, b.reject(order, fmt.Sprintf("limit %.4f not marketable vs mark %.4f", order.LimitPrice, mark))
		}
		if order.Side == Sell && mark < order.LimitPrice {
			return nil, b.reject(order, fmt.Sprintf("limit %.4f not marketable vs mark %.4f", order.LimitPrice, mark))
		}
		fillPrice = mark
	case Market:
		slip := mark * b.config.SlippageBps / 10000.0
		if order.Side == Buy {
			fillPrice = mark + slip
		} else {
			fillPrice = mark - slip
		}
	default:
		return nil, b.reject(order, fmt.Sprintf("unsupported order type %s", order.Type))
	}

	notional := float64(order.Qty) * fillPrice
	fee := b.config.CommissionBps / 10000.0 * notional
	if fee < b.config.MinFee {
		fee = b.config.MinFee
	}

	switch order.Side {
	case Buy:
		if notional+fee > b.portfolio.Cash {
			return nil, b.reject(order, fmt.Sprintf("insufficient cash: need %.2f, have %.2f", notional+fee, b.portfolio.Cash))
		}
		b.applyBuy(order, fillPrice)
		b.portfolio.Cash -= notional + fee
	case Sell:
		pos := b.portfolio.Positions[order.Symbol]
		held := 0
		if pos != nil {
			held = pos.Qty
		}
		if order.Qty > held {
			return nil, b.reject(order, fmt.Sprintf("insufficient position: sell %d vs held %d", order.Qty, held))
		}
		b.applySell(order, fillPrice)
		b.portfolio.Cash += notional - fee
	default:
		return nil, b.reject(order, fmt.Sprintf("unsupported side %s", order.Side))
	}

	b.portfolio.FeesPaid += fee

	fill := Fill{
		OrderID:   order.ID,
		Timestamp: time.Now().UTC(),
		Symbol:    order.Symbol,
		Side:      order.Side,
		Qty:       order.Qty,
		Price:     fillPrice,
		Fee:       fee,
		Slippage:  fillPrice - mark,
		Note:      order.Tag,
	}
	b.fills = append(b.fills, fill)

	log.Debug().Str("symbol", order.Symbol).Str("side", string(order.Side)).
		Int("qty", order.Qty).Float64("price", fillPrice).Float64("fee", fee).
		Msg("Order filled")

	return &fill, nil
}

// applyBuy blends avg price as a quantity-weighted average and
// increments the held quantity.
func (b *PaperBroker) applyBuy(order Order, fillPrice float64) {
	pos, ok := b.portfolio.Positions[order.Symbol]
	if !ok {
		pos = &Position{Symbol: order.Symbol}
		b.portfolio.Positions[order.Symbol] = pos
	}
	if pos.Qty == 0 {
		pos.OpenedAt = order.Timestamp
	}
	oldQty := float64(pos.Qty)
	newQty := oldQty + float64(order.Qty)
	pos.AvgPrice = (pos.AvgPrice*oldQty + fillPrice*float64(order.Qty)) / newQty
	pos.Qty += order.Qty
}

// applySell realizes P&L against avg price and decrements quantity,
// resetting the position on a full exit.
func (b *PaperBroker) applySell(order Order, fillPrice float64) {
	pos := b.portfolio.Positions[order.Symbol]
	pos.RealizedPnL += (fillPrice - pos.AvgPrice) * float64(order.Qty)
	pos.Qty -= order.Qty
	if pos.Qty == 0 {
		pos.AvgPrice = 0
		pos.StopLoss = nil
		pos.TakeProfit = nil
		pos.OpenedAt = time.Time{}
	}
}

func (b *PaperBroker) reject(order Order, reason string) *Rejection {
	log.Debug().Str("symbol", order.Symbol).Str("side", string(order.Side)).
		Int("qty", order.Qty).Str("reason", reason).Msg("Order rejected")
	return &Rejection{Order: order, Reason: reason}
}

// SetStops attaches stop-loss and take-profit levels to an open
// position. No-op when the symbol is flat.
func (b *PaperBroker) SetStops(symbol string, stopLoss, takeProfit *float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.portfolio.Positions[symbol]
	if !ok || pos.Qty == 0 {
		return
	}
	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit
}
