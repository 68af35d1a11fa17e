package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/equityrun/equityrun/internal/engine"
)

// statusLine mirrors engine activity onto the terminal, one line per
// completed step, forwarding every event to the wrapped recorder.
type statusLine struct {
	next engine.Recorder
	out  io.Writer

	mu     sync.Mutex
	step   int
	fills  int
	equity float64
}

func newStatusLine(next engine.Recorder, out io.Writer) *statusLine {
	return &statusLine{next: next, out: out}
}

func (s *statusLine) StepCompleted(took time.Duration, symbols int) {
	s.mu.Lock()
	s.step++
	fmt.Fprintf(s.out, "step %d  symbols %d  fills %d  equity %.2f  (%s)\n",
		s.step, symbols, s.fills, s.equity, took.Round(time.Millisecond))
	s.mu.Unlock()
	if s.next != nil {
		s.next.StepCompleted(took, symbols)
	}
}

func (s *statusLine) OrderFilled(symbol, side string) {
	s.mu.Lock()
	s.fills++
	s.mu.Unlock()
	if s.next != nil {
		s.next.OrderFilled(symbol, side)
	}
}

func (s *statusLine) OrderRejected(symbol, reason string) {
	if s.next != nil {
		s.next.OrderRejected(symbol, reason)
	}
}

func (s *statusLine) EquityUpdated(equity float64) {
	s.mu.Lock()
	s.equity = equity
	s.mu.Unlock()
	if s.next != nil {
		s.next.EquityUpdated(equity)
	}
}

func (s *statusLine) RegimeObserved(symbol, regimeName string) {
	if s.next != nil {
		s.next.RegimeObserved(symbol, regimeName)
	}
}
