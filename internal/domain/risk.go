package domain

// RiskAction is the overall verdict of the risk gate.
type RiskAction string

const (
	RiskActionAllow RiskAction = "ALLOW"
	RiskActionBlock RiskAction = "BLOCK"
	RiskActionPause RiskAction = "PAUSE"
	RiskActionHalt  RiskAction = "HALT"
)

// RiskSeverity classifies a single check result. A HARD breach forces the
// overall decision to BLOCK; SOFT breaches only attach warning reasons.
type RiskSeverity string

const (
	RiskSeverityHard RiskSeverity = "HARD"
	RiskSeveritySoft RiskSeverity = "SOFT"
)

// RiskReason is one structured check result. Reasons keep the order in which
// the checks ran so a decision is reproducible given identical inputs.
type RiskReason struct {
	Code     string
	Message  string
	Severity RiskSeverity
	Metrics  map[string]float64
}

// RiskDecision is the immutable outcome of one risk-gate evaluation. It is
// produced once per order and attached to the pipeline result metadata.
type RiskDecision struct {
	Allowed bool
	Action  RiskAction
	Reasons []RiskReason
}

// RiskLimits is the per-session risk configuration, loaded once and read-only
// to the pipeline.
type RiskLimits struct {
	MaxPositionWeight float64 // fraction of equity per symbol
	MaxGrossExposure  float64 // gross notional / equity
	MaxNetExposure    float64 // |net notional| / equity
	MaxVaR            float64 // fraction of equity
	MaxCVaR           float64 // fraction of equity
	VaRAlpha          float64 // confidence level for the external calculator
	VaRWindow         int     // number of returns consumed per evaluation
}

// Scaled returns a copy with the position and exposure caps multiplied by
// factor. It is how the kill switch's position_limit_factor tightens limits
// during graduated recovery; factor 1.0 returns the limits unchanged.
func (l RiskLimits) Scaled(factor float64) RiskLimits {
	if factor >= 1.0 || factor <= 0 {
		return l
	}
	out := l
	out.MaxPositionWeight *= factor
	out.MaxGrossExposure *= factor
	out.MaxNetExposure *= factor
	return out
}

// VaRCalculator computes value-at-risk numbers from a returns series. The
// concrete numerics live outside the core; the risk gate treats this as an
// opaque, deterministic function call.
type VaRCalculator interface {
	// VaR returns (VaR, CVaR) for the given returns at confidence alpha,
	// both expressed as positive fractions of equity.
	VaR(returns []float64, alpha float64) (float64, float64)
}
