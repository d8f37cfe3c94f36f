// Package risk implements the pre-trade risk gate. Evaluate is a pure
// function of (order, snapshot, limits): given identical inputs it returns an
// identical decision with identically ordered reasons, which keeps every
// pre-trade verdict reproducible from the audit trail.
package risk

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// Reason codes emitted by the gate, in check-priority order.
const (
	ReasonPositionWeight = "POSITION_WEIGHT_LIMIT"
	ReasonGrossExposure  = "GROSS_EXPOSURE_LIMIT"
	ReasonNetExposure    = "NET_EXPOSURE_LIMIT"
	ReasonVaR            = "VAR_LIMIT"
	ReasonCVaR           = "CVAR_LIMIT"
	ReasonStaleData      = "INSUFFICIENT_RISK_DATA"
	ReasonUnpriceable    = "UNPRICEABLE_ORDER"
)

// warnFraction is the fraction of a cap at which a soft warning reason is
// attached even though the order is still allowed.
const warnFraction = 0.9

// Gate evaluates orders against portfolio state and configured limits. The
// only collaborator is the VaR calculator, injected once at startup; the gate
// itself holds no mutable state.
type Gate struct {
	varCalc domain.VaRCalculator
}

// NewGate creates a Gate backed by the given VaR calculator.
func NewGate(varCalc domain.VaRCalculator) *Gate {
	return &Gate{varCalc: varCalc}
}

// Evaluate runs the checks in fixed priority order: per-position weight,
// gross exposure, net exposure, then VaR/CVaR. Any HARD breach forces
// action=BLOCK regardless of the other checks, including when the returns
// series is too short. Soft breaches attach warning reasons but still allow.
// Degraded inputs (a returns series shorter than the configured VaR window,
// or an order with no resolvable price) yield PAUSE: the gate refuses to
// guess.
func (g *Gate) Evaluate(order domain.Order, snapshot domain.PortfolioSnapshot, limits domain.RiskLimits) domain.RiskDecision {
	var reasons []domain.RiskReason

	price := markPrice(order, snapshot)
	if price <= 0 {
		// A MARKET order on a symbol with no mark resolves to price 0;
		// projecting exposure from it would trivially pass every check.
		reasons = append(reasons, domain.RiskReason{
			Code:     ReasonUnpriceable,
			Message:  fmt.Sprintf("no price available to project exposure for %s", order.Intent.Symbol),
			Severity: domain.RiskSeveritySoft,
		})
		return decision(domain.RiskActionPause, reasons)
	}
	delta := order.Intent.Quantity
	if order.Intent.Side == domain.SideSell {
		delta = -delta
	}
	notionalDelta := delta * price

	// Check 1: per-position weight.
	if limits.MaxPositionWeight > 0 && snapshot.Equity > 0 {
		existing, _ := snapshot.Position(order.Intent.Symbol)
		projected := math.Abs(existing.Units*existing.Price+notionalDelta) / snapshot.Equity
		reasons = appendBreach(reasons, ReasonPositionWeight, projected, limits.MaxPositionWeight,
			fmt.Sprintf("projected weight of %s", order.Intent.Symbol))
	}

	// Check 2: gross exposure.
	if limits.MaxGrossExposure > 0 && snapshot.Equity > 0 {
		existing, _ := snapshot.Position(order.Intent.Symbol)
		projectedGross := snapshot.GrossExposure() - existing.Notional() +
			math.Abs(existing.Units*existing.Price+notionalDelta)
		ratio := projectedGross / snapshot.Equity
		reasons = appendBreach(reasons, ReasonGrossExposure, ratio, limits.MaxGrossExposure,
			"projected gross exposure")
	}

	// Check 3: net exposure.
	if limits.MaxNetExposure > 0 && snapshot.Equity > 0 {
		ratio := math.Abs(snapshot.NetExposure()+notionalDelta) / snapshot.Equity
		reasons = appendBreach(reasons, ReasonNetExposure, ratio, limits.MaxNetExposure,
			"projected net exposure")
	}

	// Check 4: VaR / CVaR via the external calculator.
	if limits.MaxVaR > 0 || limits.MaxCVaR > 0 {
		if limits.VaRWindow > 0 && len(snapshot.Returns) < limits.VaRWindow {
			reasons = append(reasons, domain.RiskReason{
				Code:     ReasonStaleData,
				Message:  fmt.Sprintf("returns window %d below required %d", len(snapshot.Returns), limits.VaRWindow),
				Severity: domain.RiskSeveritySoft,
				Metrics: map[string]float64{
					"returns":  float64(len(snapshot.Returns)),
					"required": float64(limits.VaRWindow),
				},
			})
			if hasHardBreach(reasons) {
				return decision(domain.RiskActionBlock, reasons)
			}
			return decision(domain.RiskActionPause, reasons)
		}

		returns := snapshot.Returns
		if limits.VaRWindow > 0 && len(returns) > limits.VaRWindow {
			returns = returns[len(returns)-limits.VaRWindow:]
		}
		valueAtRisk, cvar := g.varCalc.VaR(returns, limits.VaRAlpha)
		if limits.MaxVaR > 0 {
			reasons = appendBreach(reasons, ReasonVaR, valueAtRisk, limits.MaxVaR, "portfolio VaR")
		}
		if limits.MaxCVaR > 0 {
			reasons = appendBreach(reasons, ReasonCVaR, cvar, limits.MaxCVaR, "portfolio CVaR")
		}
	}

	if hasHardBreach(reasons) {
		return decision(domain.RiskActionBlock, reasons)
	}
	return decision(domain.RiskActionAllow, reasons)
}

func hasHardBreach(reasons []domain.RiskReason) bool {
	for _, r := range reasons {
		if r.Severity == domain.RiskSeverityHard {
			return true
		}
	}
	return false
}

// appendBreach attaches a HARD reason when value exceeds cap and a SOFT
// warning when it is within warnFraction of the cap.
func appendBreach(reasons []domain.RiskReason, code string, value, cap float64, what string) []domain.RiskReason {
	metrics := map[string]float64{"value": value, "limit": cap}
	switch {
	case value > cap:
		return append(reasons, domain.RiskReason{
			Code:     code,
			Message:  fmt.Sprintf("%s %.4f exceeds limit %.4f", what, value, cap),
			Severity: domain.RiskSeverityHard,
			Metrics:  metrics,
		})
	case value > cap*warnFraction:
		return append(reasons, domain.RiskReason{
			Code:     code,
			Message:  fmt.Sprintf("%s %.4f approaching limit %.4f", what, value, cap),
			Severity: domain.RiskSeveritySoft,
			Metrics:  metrics,
		})
	default:
		return reasons
	}
}

func decision(action domain.RiskAction, reasons []domain.RiskReason) domain.RiskDecision {
	return domain.RiskDecision{
		Allowed: action == domain.RiskActionAllow,
		Action:  action,
		Reasons: reasons,
	}
}

// markPrice resolves the price used to project exposure: the current mark when
// the portfolio already holds the symbol, otherwise the intent's limit price.
func markPrice(order domain.Order, snapshot domain.PortfolioSnapshot) float64 {
	if pos, ok := snapshot.Position(order.Intent.Symbol); ok && pos.Price > 0 {
		return pos.Price
	}
	return order.Intent.LimitPrice
}
