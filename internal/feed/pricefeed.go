// Package feed maintains the real-time market data connection. Prices from
// the feed mark the portfolio, fill paper orders, and drive the staleness and
// connectivity health probes.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// MarkSink receives every price tick, typically the portfolio tracker.
type MarkSink interface {
	MarkPrice(symbol string, price float64)
}

// tickerMessage is the wire shape of one market data tick.
type tickerMessage struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// subscribeCommand is sent after connecting to select symbols.
type subscribeCommand struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// PriceFeed connects to the market data WebSocket, subscribes to ticker
// updates for the configured symbols, and caches the last observed price per
// symbol. It reconnects with exponential backoff on disconnect.
type PriceFeed struct {
	wsURL   string
	symbols []string
	sink    MarkSink
	logger  *slog.Logger

	mu        sync.RWMutex
	prices    map[string]float64
	lastTick  time.Time
	connected bool
}

// NewPriceFeed creates a feed that will subscribe to the given symbols. sink
// may be nil when no component needs per-tick marks.
func NewPriceFeed(wsURL string, symbols []string, sink MarkSink, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:   wsURL,
		symbols: symbols,
		sink:    sink,
		logger:  logger.With(slog.String("component", "price_feed")),
		prices:  make(map[string]float64),
	}
}

// LastPrice returns the most recent price seen for symbol, and whether any
// tick for it has arrived yet.
func (f *PriceFeed) LastPrice(symbol string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[symbol]
	return p, ok
}

// Connected reports whether a WebSocket session is currently established.
func (f *PriceFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// LastTickAge returns the time since the most recent tick on any symbol. It
// reports a very large age until the first tick arrives so staleness checks
// fail closed.
func (f *PriceFeed) LastTickAge() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.lastTick.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(f.lastTick)
}

// Run connects, subscribes, and consumes ticks until ctx is cancelled.
// Reconnects with exponential backoff on disconnect.
func (f *PriceFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, feed idle")
		<-ctx.Done()
		return ctx.Err()
	}

	delay := reconnectDelay
	for {
		err := f.runConnection(ctx)
		f.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("market data feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection dials, subscribes, and reads ticks until the connection or
// the context fails. The returned error is always non-nil.
func (f *PriceFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sub := subscribeCommand{Type: "subscribe", Symbols: f.symbols}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.setConnected(true)
	f.logger.Info("market data feed subscribed", slog.Int("symbols", len(f.symbols)))

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			conn.Close()
		case <-done:
		}
	}()
	go f.pingLoop(conn, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(message)
	}
}

// pingLoop keeps the WebSocket session alive until done is closed.
func (f *PriceFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one raw message and records the tick. Unparseable or
// non-ticker messages are dropped silently.
func (f *PriceFeed) handleMessage(raw []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Type != "ticker" || msg.Symbol == "" || msg.Price <= 0 {
		return
	}

	f.mu.Lock()
	f.prices[msg.Symbol] = msg.Price
	f.lastTick = time.Now()
	f.mu.Unlock()

	if f.sink != nil {
		f.sink.MarkPrice(msg.Symbol, msg.Price)
	}
}

func (f *PriceFeed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}
