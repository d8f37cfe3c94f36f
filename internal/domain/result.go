package domain

// Stage identifies one of the eight pipeline stages. Results record the stage
// at which the pipeline concluded, successfully or not.
type Stage int

const (
	StageIntake Stage = iota + 1
	StageContract
	StageRiskGate
	StageRoute
	StageDispatch
	StageExecution
	StagePostTrade
	StageRecon
)

// String returns the stage name used in logs and audit entries.
func (s Stage) String() string {
	switch s {
	case StageIntake:
		return "intent_intake"
	case StageContract:
		return "contract_validation"
	case StageRiskGate:
		return "risk_gate"
	case StageRoute:
		return "route_selection"
	case StageDispatch:
		return "adapter_dispatch"
	case StageExecution:
		return "execution_event"
	case StagePostTrade:
		return "post_trade"
	case StageRecon:
		return "recon_handoff"
	default:
		return "unknown"
	}
}

// ReasonCode classifies why a pipeline concluded the way it did. Operators use
// it to tell "halted for safety" from "rejected by policy" from "rejected by
// the exchange".
type ReasonCode string

const (
	ReasonOK                   ReasonCode = "OK"
	ReasonContractInvalid      ReasonCode = "CONTRACT_INVALID"
	ReasonRiskRejectKillSwitch ReasonCode = "RISK_REJECT_KILL_SWITCH"
	ReasonRiskReject           ReasonCode = "RISK_REJECT"
	ReasonRiskRejectPause      ReasonCode = "RISK_REJECT_PAUSE"
	ReasonPolicyLiveNotEnabled ReasonCode = "POLICY_LIVE_NOT_ENABLED"
	ReasonRouteUnavailable     ReasonCode = "ROUTE_UNAVAILABLE"
	ReasonDispatchExhausted    ReasonCode = "DISPATCH_EXHAUSTED"
	ReasonAdapterReject        ReasonCode = "ADAPTER_REJECT"
	ReasonCancelled            ReasonCode = "CANCELLED"
)

// ResultMetadata carries the structured artifacts attached to a pipeline
// result: the risk decision, the adapter event, and audit references.
type ResultMetadata struct {
	RiskDecision   *RiskDecision
	ExecutionEvent *ExecutionEvent
	AuditRefs      []string
	ExecutionMode  string
}

// PipelineResult is the single, complete outcome returned synchronously for
// one intent. It is produced exactly once per idempotency key and never
// mutated afterward; duplicate submissions receive the recorded value.
type PipelineResult struct {
	Success        bool
	Order          *Order // nil when rejected before contract validation
	StageReached   Stage
	CorrelationID  string
	IdempotencyKey string
	ReasonCode     ReasonCode
	ReasonDetail   string
	LedgerEntries  []OrderLedgerRecord
	Metadata       ResultMetadata
}
