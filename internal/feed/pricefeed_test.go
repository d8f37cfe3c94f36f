package feed

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu    sync.Mutex
	marks map[string]float64
}

func (s *recordingSink) MarkPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marks == nil {
		s.marks = make(map[string]float64)
	}
	s.marks[symbol] = price
}

func TestHandleMessageRecordsTicker(t *testing.T) {
	sink := &recordingSink{}
	f := NewPriceFeed("wss://example.com/ws", []string{"BTC-USD"}, sink, testLogger())

	f.handleMessage([]byte(`{"type":"ticker","symbol":"BTC-USD","price":50000}`))

	px, ok := f.LastPrice("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 50_000.0, px)
	assert.Equal(t, 50_000.0, sink.marks["BTC-USD"])
}

func TestHandleMessageDropsNonTicker(t *testing.T) {
	f := NewPriceFeed("wss://example.com/ws", []string{"BTC-USD"}, nil, testLogger())

	f.handleMessage([]byte(`{"type":"heartbeat"}`))
	f.handleMessage([]byte(`{"type":"ticker","symbol":"","price":1}`))
	f.handleMessage([]byte(`{"type":"ticker","symbol":"BTC-USD","price":0}`))
	f.handleMessage([]byte(`not json`))

	_, ok := f.LastPrice("BTC-USD")
	assert.False(t, ok)
	assert.Equal(t, time.Duration(1<<63-1), f.LastTickAge(), "no tick yet must read as maximally stale")
}

func TestHandleMessageUpdatesTickAge(t *testing.T) {
	f := NewPriceFeed("wss://example.com/ws", []string{"BTC-USD"}, nil, testLogger())

	f.handleMessage([]byte(`{"type":"ticker","symbol":"BTC-USD","price":50000}`))

	assert.Less(t, f.LastTickAge(), time.Second)
}

func TestLastPriceTracksLatestTick(t *testing.T) {
	f := NewPriceFeed("wss://example.com/ws", []string{"BTC-USD"}, nil, testLogger())

	f.handleMessage([]byte(`{"type":"ticker","symbol":"BTC-USD","price":50000}`))
	f.handleMessage([]byte(`{"type":"ticker","symbol":"BTC-USD","price":50500}`))

	px, ok := f.LastPrice("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 50_500.0, px)
}

func TestConnectedDefaultsFalse(t *testing.T) {
	f := NewPriceFeed("wss://example.com/ws", []string{"BTC-USD"}, nil, testLogger())
	assert.False(t, f.Connected())

	f.setConnected(true)
	assert.True(t, f.Connected())
}
