package domain

import (
	"math"
	"time"
)

// PositionSnapshot is one open position inside a portfolio snapshot.
type PositionSnapshot struct {
	Symbol string
	Units  float64 // signed: negative for short
	Price  float64 // latest mark
}

// Notional returns the absolute mark value of the position.
func (p PositionSnapshot) Notional() float64 {
	return math.Abs(p.Units) * p.Price
}

// PortfolioSnapshot is a consistent, fully-published view of the portfolio.
// Snapshots are immutable; the tracker publishes a fresh copy on every update
// so readers never observe a torn state. Positions keep a stable symbol order.
type PortfolioSnapshot struct {
	Equity    float64
	Positions []PositionSnapshot
	Returns   []float64 // rolling equity returns, oldest first
	AsOf      time.Time
}

// Position returns the snapshot entry for symbol, or a zero value when the
// portfolio holds no such position.
func (s PortfolioSnapshot) Position(symbol string) (PositionSnapshot, bool) {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return PositionSnapshot{}, false
}

// GrossExposure returns the sum of absolute position notionals.
func (s PortfolioSnapshot) GrossExposure() float64 {
	var gross float64
	for _, p := range s.Positions {
		gross += p.Notional()
	}
	return gross
}

// NetExposure returns the signed sum of position notionals.
func (s PortfolioSnapshot) NetExposure() float64 {
	var net float64
	for _, p := range s.Positions {
		net += p.Units * p.Price
	}
	return net
}
