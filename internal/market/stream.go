package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// QuoteTick is one streamed price update
type QuoteTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"ts"`
}

// QuoteStream maintains a websocket connection to a quote feed and keeps
// a map of last-seen prices. It reconnects with backoff until the
// context is cancelled. The stream is an optional overlay: providers
// remain the source of truth for bar history, the stream only freshens
// mark prices between bar closes.
type QuoteStream struct {
	url     string
	symbols []string

	mu     sync.RWMutex
	latest map[string]QuoteTick

	OnReconnect func()
}

// NewQuoteStream creates a stream for the given feed URL and symbols
func NewQuoteStream(url string, symbols []string) *QuoteStream {
	return &QuoteStream{
		url:     url,
		symbols: symbols,
		latest:  make(map[string]QuoteTick),
	}
}

type subscribeMsg struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Run connects and consumes ticks until ctx is cancelled. Connection
// failures retry with capped exponential backoff.
func (qs *QuoteStream) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := qs.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Dur("backoff", backoff).Msg("Quote stream disconnected, retrying")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
		if qs.OnReconnect != nil {
			qs.OnReconnect()
		}
	}
}

func (qs *QuoteStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, qs.url, nil)
	if err != nil {
		return fmt.Errorf("dial quote feed: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMsg{Action: "subscribe", Symbols: qs.symbols}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Info().Str("url", qs.url).Int("symbols", len(qs.symbols)).Msg("Quote stream connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read tick: %w", err)
		}

		var tick QuoteTick
		if err := json.Unmarshal(payload, &tick); err != nil {
			log.Debug().Err(err).Msg("Dropping malformed tick")
			continue
		}
		if tick.Symbol == "" || tick.Price <= 0 {
			continue
		}
		if tick.Timestamp.IsZero() {
			tick.Timestamp = time.Now().UTC()
		}

		qs.mu.Lock()
		qs.latest[tick.Symbol] = tick
		qs.mu.Unlock()
	}
}

// Latest returns the last streamed tick for symbol, if any
func (qs *QuoteStream) Latest(symbol string) (QuoteTick, bool) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	tick, ok := qs.latest[symbol]
	return tick, ok
}
