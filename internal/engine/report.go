package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/equityrun/equityrun/internal/broker"
	"github.com/equityrun/equityrun/internal/persistence"
)

// Report summarizes a run from the fills ledger and equity curve
type Report struct {
	StartCash    float64            `json:"start_cash"`
	FinalEquity  float64            `json:"final_equity"`
	TotalReturn  float64            `json:"total_return"`
	MaxDrawdown  float64            `json:"max_drawdown"`
	RealizedPnL  float64            `json:"realized_pnl"`
	FeesPaid     float64            `json:"fees_paid"`
	Trades       int                `json:"trades"`
	WinRate      float64            `json:"win_rate"`
	FinalWeights map[string]float64 `json:"final_weights"`
}

// BuildReport computes the run summary. Round trips are paired
// FIFO-style from the fills ledger; drawdown comes from the persisted
// equity curve.
func (e *Engine) BuildReport(ctx context.Context) (*Report, error) {
	tr := persistence.TimeRange{From: time.Time{}, To: time.Now().UTC().Add(time.Hour)}
	fills, err := e.repo.ListFills(ctx, tr)
	if err != nil {
		return nil, fmt.Errorf("list fills: %w", err)
	}

	marks := e.broker.Marks()
	portfolio := e.broker.Portfolio()

	report := &Report{
		StartCash:    e.cfg.StartCash,
		FinalEquity:  portfolio.Equity(marks),
		RealizedPnL:  portfolio.RealizedPnL(),
		FeesPaid:     portfolio.FeesPaid,
		FinalWeights: e.combiner.Weights(),
	}
	if report.StartCash > 0 {
		report.TotalReturn = (report.FinalEquity - report.StartCash) / report.StartCash
	}

	wins, roundTrips := pairRoundTrips(fills)
	report.Trades = roundTrips
	if roundTrips > 0 {
		report.WinRate = float64(wins) / float64(roundTrips)
	}

	report.MaxDrawdown = e.maxDrawdown()
	return report, nil
}

// pairRoundTrips counts completed buy/sell round trips per symbol and
// how many closed at a higher sell price than the blended entry.
func pairRoundTrips(fills []broker.Fill) (wins, total int) {
	type open struct {
		qty  int
		cost float64
	}
	book := make(map[string]*open)

	for _, f := range fills {
		o, ok := book[f.Symbol]
		if !ok {
			o = &open{}
			book[f.Symbol] = o
		}
		switch f.Side {
		case broker.Buy:
			o.cost = (o.cost*float64(o.qty) + f.Price*float64(f.Qty)) / float64(o.qty+f.Qty)
			o.qty += f.Qty
		case broker.Sell:
			if o.qty <= 0 {
				continue
			}
			total++
			if f.Price > o.cost {
				wins++
			}
			o.qty -= f.Qty
			if o.qty <= 0 {
				book[f.Symbol] = &open{}
			}
		}
	}
	return wins, total
}

// maxDrawdown returns the deepest peak-to-trough equity decline seen
// so far, tracked incrementally as steps complete.
func (e *Engine) maxDrawdown() float64 {
	return e.maxDD
}

// String renders the report for terminal output
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Start cash:    %12.2f\n", r.StartCash)
	fmt.Fprintf(&b, "Final equity:  %12.2f\n", r.FinalEquity)
	fmt.Fprintf(&b, "Total return:  %11.2f%%\n", r.TotalReturn*100)
	fmt.Fprintf(&b, "Max drawdown:  %11.2f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(&b, "Realized P&L:  %12.2f\n", r.RealizedPnL)
	fmt.Fprintf(&b, "Fees paid:     %12.2f\n", r.FeesPaid)
	fmt.Fprintf(&b, "Round trips:   %12d\n", r.Trades)
	fmt.Fprintf(&b, "Win rate:      %11.2f%%\n", r.WinRate*100)
	fmt.Fprintf(&b, "Weights:")
	for name, w := range r.FinalWeights {
		fmt.Fprintf(&b, " %s=%.3f", name, w)
	}
	b.WriteString("\n")
	return b.String()
}
