package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// stubVaR returns fixed figures and records the series it was handed.
type stubVaR struct {
	v, cv    float64
	lastSize int
}

func (s *stubVaR) VaR(returns []float64, alpha float64) (float64, float64) {
	s.lastSize = len(returns)
	return s.v, s.cv
}

func testOrder(symbol string, side domain.Side, qty, limit float64) domain.Order {
	return domain.Order{
		OrderID:        "ord-1",
		CorrelationID:  "corr-1",
		IdempotencyKey: "key-1",
		Intent: domain.OrderIntent{
			IntentID:   "int-1",
			StrategyID: "momentum",
			Symbol:     symbol,
			Side:       side,
			Quantity:   qty,
			OrderType:  domain.OrderTypeLimit,
			LimitPrice: limit,
		},
		State: domain.OrderStateCreated,
	}
}

func testLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxPositionWeight: 0.10,
		MaxGrossExposure:  2.0,
		MaxNetExposure:    1.0,
		MaxVaR:            0.05,
		MaxCVaR:           0.08,
		VaRAlpha:          0.99,
		VaRWindow:         5,
	}
}

func flatSnapshot(equity float64) domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		Equity:  equity,
		Returns: []float64{0.001, -0.001, 0.002, -0.002, 0.001},
	}
}

func TestGateAllowsCleanOrder(t *testing.T) {
	gate := NewGate(&stubVaR{v: 0.01, cv: 0.02})

	// 100 units at 50 against 1M equity: weight 0.005, well inside every cap.
	dec := gate.Evaluate(testOrder("BTC-USD", domain.SideBuy, 100, 50), flatSnapshot(1_000_000), testLimits())

	assert.True(t, dec.Allowed)
	assert.Equal(t, domain.RiskActionAllow, dec.Action)
	assert.Empty(t, dec.Reasons)
}

func TestGateBlocksOnPositionWeightBreach(t *testing.T) {
	gate := NewGate(&stubVaR{})

	// 3000 units at 50 = 150k projected weight 0.15 against a 0.10 cap.
	dec := gate.Evaluate(testOrder("BTC-USD", domain.SideBuy, 3000, 50), flatSnapshot(1_000_000), testLimits())

	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.RiskActionBlock, dec.Action)
	require.NotEmpty(t, dec.Reasons)
	assert.Equal(t, ReasonPositionWeight, dec.Reasons[0].Code)
	assert.Equal(t, domain.RiskSeverityHard, dec.Reasons[0].Severity)
	assert.InDelta(t, 0.15, dec.Reasons[0].Metrics["value"], 1e-9)
}

func TestGateSoftWarningStillAllows(t *testing.T) {
	gate := NewGate(&stubVaR{})

	// Projected weight 0.095: above the 0.9 warning fraction, below the cap.
	dec := gate.Evaluate(testOrder("BTC-USD", domain.SideBuy, 1900, 50), flatSnapshot(1_000_000), testLimits())

	assert.True(t, dec.Allowed)
	assert.Equal(t, domain.RiskActionAllow, dec.Action)
	require.Len(t, dec.Reasons, 1)
	assert.Equal(t, ReasonPositionWeight, dec.Reasons[0].Code)
	assert.Equal(t, domain.RiskSeveritySoft, dec.Reasons[0].Severity)
}

func TestGateReasonsKeepCheckOrder(t *testing.T) {
	gate := NewGate(&stubVaR{})

	// Existing book already at the gross cap; a large sell breaches weight,
	// gross and net at once. Reasons must come back in check order.
	snap := domain.PortfolioSnapshot{
		Equity: 100_000,
		Positions: []domain.PositionSnapshot{
			{Symbol: "BTC-USD", Units: -2000, Price: 100},
		},
		Returns: []float64{0.001, -0.001, 0.002, -0.002, 0.001},
	}
	dec := gate.Evaluate(testOrder("BTC-USD", domain.SideSell, 500, 100), snap, testLimits())

	assert.Equal(t, domain.RiskActionBlock, dec.Action)
	require.Len(t, dec.Reasons, 3)
	assert.Equal(t, ReasonPositionWeight, dec.Reasons[0].Code)
	assert.Equal(t, ReasonGrossExposure, dec.Reasons[1].Code)
	assert.Equal(t, ReasonNetExposure, dec.Reasons[2].Code)
}

func TestGateHardBreachDominatesSoftWarnings(t *testing.T) {
	gate := NewGate(&stubVaR{v: 0.06, cv: 0.07}) // VaR above the 0.05 cap

	dec := gate.Evaluate(testOrder("BTC-USD", domain.SideBuy, 100, 50), flatSnapshot(1_000_000), testLimits())

	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.RiskActionBlock, dec.Action)
	require.Len(t, dec.Reasons, 1)
	assert.Equal(t, ReasonVaR, dec.Reasons[0].Code)
	assert.Equal(t, domain.RiskSeverityHard, dec.Reasons[0].Severity)
}

func TestGatePausesOnShortReturnsWindow(t *testing.T) {
	calc := &stubVaR{}
	gate := NewGate(calc)

	snap := flatSnapshot(1_000_000)
	snap.Returns = snap.Returns[:2] // below the configured window of 5

	dec := gate.Evaluate(testOrder("BTC-USD", domain.SideBuy, 100, 50), snap, testLimits())

	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.RiskActionPause, dec.Action)
	require.Len(t, dec.Reasons, 1)
	assert.Equal(t, ReasonStaleData, dec.Reasons[0].Code)
	assert.Zero(t, calc.lastSize, "calculator must not run on degraded inputs")
}

func TestGateHardBreachOutranksShortReturnsWindow(t *testing.T) {
	calc := &stubVaR{}
	gate := NewGate(calc)

	// Projected weight 0.15 breaches the 0.10 cap AND the returns series is
	// below the window. The hard breach must win: BLOCK, not PAUSE.
	snap := flatSnapshot(1_000_000)
	snap.Returns = snap.Returns[:2]

	dec := gate.Evaluate(testOrder("BTC-USD", domain.SideBuy, 3000, 50), snap, testLimits())

	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.RiskActionBlock, dec.Action)
	require.Len(t, dec.Reasons, 2)
	assert.Equal(t, ReasonPositionWeight, dec.Reasons[0].Code)
	assert.Equal(t, domain.RiskSeverityHard, dec.Reasons[0].Severity)
	assert.Equal(t, ReasonStaleData, dec.Reasons[1].Code)
	assert.Zero(t, calc.lastSize, "calculator must not run on degraded inputs")
}

func TestGatePausesOnUnpriceableOrder(t *testing.T) {
	gate := NewGate(&stubVaR{})

	// A MARKET order on a symbol the book does not hold has no price to
	// project exposure from; the gate must not wave it through on a zero
	// notional.
	order := testOrder("ETH-USD", domain.SideBuy, 100, 0)
	order.Intent.OrderType = domain.OrderTypeMarket

	dec := gate.Evaluate(order, flatSnapshot(1_000_000), testLimits())

	assert.False(t, dec.Allowed)
	assert.Equal(t, domain.RiskActionPause, dec.Action)
	require.Len(t, dec.Reasons, 1)
	assert.Equal(t, ReasonUnpriceable, dec.Reasons[0].Code)
}

func TestGateTrimsReturnsToWindow(t *testing.T) {
	calc := &stubVaR{}
	gate := NewGate(calc)

	snap := flatSnapshot(1_000_000)
	snap.Returns = make([]float64, 12) // longer than the window of 5

	gate.Evaluate(testOrder("BTC-USD", domain.SideBuy, 100, 50), snap, testLimits())

	assert.Equal(t, 5, calc.lastSize)
}

func TestGateUsesMarkPriceForHeldSymbol(t *testing.T) {
	gate := NewGate(&stubVaR{})

	// Held at mark 200; the stale limit price of 50 must not be used, so the
	// projected weight is (100*200 + 100*200) / 100k = 0.4, a hard breach.
	snap := domain.PortfolioSnapshot{
		Equity: 100_000,
		Positions: []domain.PositionSnapshot{
			{Symbol: "BTC-USD", Units: 100, Price: 200},
		},
		Returns: []float64{0.001, -0.001, 0.002, -0.002, 0.001},
	}
	dec := gate.Evaluate(testOrder("BTC-USD", domain.SideBuy, 100, 50), snap, testLimits())

	assert.Equal(t, domain.RiskActionBlock, dec.Action)
	require.NotEmpty(t, dec.Reasons)
	assert.InDelta(t, 0.4, dec.Reasons[0].Metrics["value"], 1e-9)
}

func TestGateDeterministicForIdenticalInputs(t *testing.T) {
	gate := NewGate(&stubVaR{v: 0.02, cv: 0.03})

	order := testOrder("BTC-USD", domain.SideBuy, 1900, 50)
	snap := flatSnapshot(1_000_000)
	limits := testLimits()

	first := gate.Evaluate(order, snap, limits)
	second := gate.Evaluate(order, snap, limits)
	assert.Equal(t, first, second)
}
