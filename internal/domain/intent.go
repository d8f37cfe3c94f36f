// Package domain holds the core types of the execution service: order
// intents, orders, risk decisions, kill-switch snapshots, audit records, and
// the interfaces the infrastructure layers implement.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Side is the trade direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType selects how the order prices.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce bounds how long an order rests.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceDay TimeInForce = "DAY"
)

// OrderIntent is the immutable instruction emitted by an upstream strategy.
// The pipeline never mutates it; everything mutable lives on the derived
// Order.
type OrderIntent struct {
	IntentID    string      `json:"intent_id"`
	StrategyID  string      `json:"strategy_id"`
	RunID       string      `json:"run_id"`
	SessionID   string      `json:"session_id"`
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Quantity    float64     `json:"quantity"`
	OrderType   OrderType   `json:"order_type"`
	LimitPrice  float64     `json:"limit_price,omitempty"`
	TimeInForce TimeInForce `json:"time_in_force,omitempty"`
	CreatedAt   time.Time   `json:"created_at,omitzero"`
}

// IdempotencyKey derives the deterministic key duplicate submissions collapse
// on. It covers the economic identity of the intent; retries that alter any
// of these fields are new intents by definition. The intent id itself is
// deliberately excluded so a strategy that re-emits the same instruction
// under a fresh id still deduplicates.
func (i OrderIntent) IdempotencyKey() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%v|%s|%s", i.StrategyID, i.Symbol, i.Side, i.Quantity, i.OrderType, i.SessionID)
	if i.OrderType == OrderTypeLimit {
		fmt.Fprintf(h, "|%v", i.LimitPrice)
	}
	return hex.EncodeToString(h.Sum(nil))
}
