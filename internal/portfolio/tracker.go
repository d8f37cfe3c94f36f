// Package portfolio maintains the shared portfolio snapshot read by the risk
// gate and the kill-switch health checks. Updates follow a single-writer,
// copy-on-publish discipline: the writer builds a fresh snapshot and swaps it
// in atomically, so readers always see a fully-published state and never a
// torn one.
package portfolio

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// Tracker owns the current portfolio snapshot. It is fed by the execution
// event flow (fills) and the market-data feed (marks); pipeline tasks only
// ever read through Snapshot.
type Tracker struct {
	mu        sync.Mutex // serializes writers
	current   atomic.Value
	maxReturn int // rolling return window capacity
	logger    *slog.Logger
}

// NewTracker creates a Tracker seeded with the given starting equity. The
// returns window keeps at most maxReturns entries.
func NewTracker(startEquity float64, maxReturns int, logger *slog.Logger) *Tracker {
	t := &Tracker{
		maxReturn: maxReturns,
		logger:    logger.With(slog.String("component", "portfolio_tracker")),
	}
	t.current.Store(domain.PortfolioSnapshot{
		Equity: startEquity,
		AsOf:   time.Now().UTC(),
	})
	return t
}

// Snapshot returns the latest fully-published snapshot.
func (t *Tracker) Snapshot() domain.PortfolioSnapshot {
	return t.current.Load().(domain.PortfolioSnapshot)
}

// ApplyFill folds a fill into the tracked positions. Buys add units, sells
// subtract; a position whose units reach zero is dropped. Fees reduce equity.
func (t *Tracker) ApplyFill(symbol string, unitsDelta, price, fee float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.Snapshot()
	next := clone(snap)

	found := false
	positions := next.Positions[:0]
	for _, p := range next.Positions {
		if p.Symbol == symbol {
			found = true
			p.Units += unitsDelta
			p.Price = price
			if p.Units == 0 {
				continue
			}
		}
		positions = append(positions, p)
	}
	if !found && unitsDelta != 0 {
		positions = append(positions, domain.PositionSnapshot{
			Symbol: symbol,
			Units:  unitsDelta,
			Price:  price,
		})
	}
	next.Positions = positions
	next.Equity -= fee
	next.AsOf = time.Now().UTC()

	t.current.Store(next)
}

// MarkPrice updates the mark for symbol and records the resulting equity
// return in the rolling window. Prices for symbols not held are ignored.
func (t *Tracker) MarkPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.Snapshot()
	next := clone(snap)

	prevEquity := equityWithPositions(snap)
	changed := false
	for i, p := range next.Positions {
		if p.Symbol == symbol {
			next.Positions[i].Price = price
			changed = true
		}
	}
	if !changed {
		return
	}

	newEquity := equityWithPositions(next)
	if prevEquity > 0 {
		next.Returns = append(next.Returns, (newEquity-prevEquity)/prevEquity)
		if len(next.Returns) > t.maxReturn {
			next.Returns = next.Returns[len(next.Returns)-t.maxReturn:]
		}
	}
	next.AsOf = time.Now().UTC()

	t.current.Store(next)
}

// SetEquity overwrites the cash equity figure, typically from an account
// refresh by the external event feed.
func (t *Tracker) SetEquity(equity float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := clone(t.Snapshot())
	next.Equity = equity
	next.AsOf = time.Now().UTC()
	t.current.Store(next)
}

// equityWithPositions values cash equity plus marked position notionals.
func equityWithPositions(s domain.PortfolioSnapshot) float64 {
	v := s.Equity
	for _, p := range s.Positions {
		v += p.Units * p.Price
	}
	return v
}

// clone deep-copies the mutable slices so the published snapshot never shares
// backing arrays with the next write.
func clone(s domain.PortfolioSnapshot) domain.PortfolioSnapshot {
	out := s
	out.Positions = make([]domain.PositionSnapshot, len(s.Positions))
	copy(out.Positions, s.Positions)
	out.Returns = make([]float64, len(s.Returns))
	copy(out.Returns, s.Returns)
	return out
}
