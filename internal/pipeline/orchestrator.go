// Package pipeline composes the order execution flow: idempotent intake,
// contract validation, the kill-switch and risk gates, routing, at-most-once
// adapter dispatch, execution event handling, ledger/audit writes, and the
// reconciliation hand-off. One call to Execute runs all eight stages for one
// intent and returns a single result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradexec/internal/adapter"
	"github.com/alanyoungcy/tradexec/internal/domain"
	"github.com/alanyoungcy/tradexec/internal/killswitch"
)

// SafetySwitch is the read-only view of the kill switch the pipeline needs:
// one state read at stage 3 and the current position-limit factor. All
// mutation happens outside the request path.
type SafetySwitch interface {
	CurrentState() killswitch.State
	PositionLimitFactor() float64
}

// RiskEvaluator is the pre-trade risk gate contract.
type RiskEvaluator interface {
	Evaluate(order domain.Order, snapshot domain.PortfolioSnapshot, limits domain.RiskLimits) domain.RiskDecision
}

// OrderDispatcher sends an order through an adapter with the configured retry
// policy.
type OrderDispatcher interface {
	Dispatch(ctx context.Context, target adapter.ExecutionAdapter, order domain.Order) (domain.ExecutionEvent, error)
}

// FillApplier folds confirmed fills into the shared portfolio state.
type FillApplier interface {
	ApplyFill(symbol string, unitsDelta, price, fee float64)
}

// DispatchReporter receives dispatch outcomes and risk HALTs so the
// kill-switch monitor can trip automatically.
type DispatchReporter interface {
	RecordDispatchFailure(ctx context.Context, detail string)
	RecordDispatchSuccess()
	RecordHardBreach(ctx context.Context, detail string)
}

// Orchestrator runs the eight pipeline stages strictly in order. Stages
// within one intent run sequentially; separate intents run concurrently and
// only meet at the shared services (registry, kill switch, portfolio
// snapshot, ledgers).
type Orchestrator struct {
	registry   *Registry
	safety     SafetySwitch
	gate       RiskEvaluator
	snapshots  domain.SnapshotSource
	limits     domain.RiskLimits
	router     *Router
	dispatcher OrderDispatcher
	portfolio  FillApplier
	audit      domain.AuditSink
	orderLog   domain.OrderLedgerStore
	positions  domain.PositionLedgerStore
	recon      domain.ReconPublisher
	reporter   DispatchReporter
	logger     *slog.Logger
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Registry   *Registry
	Safety     SafetySwitch
	Gate       RiskEvaluator
	Snapshots  domain.SnapshotSource
	Limits     domain.RiskLimits
	Router     *Router
	Dispatcher OrderDispatcher
	Portfolio  FillApplier
	Audit      domain.AuditSink
	OrderLog   domain.OrderLedgerStore
	Positions  domain.PositionLedgerStore
	Recon      domain.ReconPublisher
	Reporter   DispatchReporter
	Logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator with all required dependencies.
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		registry:   d.Registry,
		safety:     d.Safety,
		gate:       d.Gate,
		snapshots:  d.Snapshots,
		limits:     d.Limits,
		router:     d.Router,
		dispatcher: d.Dispatcher,
		portfolio:  d.Portfolio,
		audit:      d.Audit,
		orderLog:   d.OrderLog,
		positions:  d.Positions,
		recon:      d.Recon,
		reporter:   d.Reporter,
		logger:     d.Logger.With(slog.String("component", "orchestrator")),
	}
}

// Execute runs one intent through the pipeline and returns its single,
// complete result. Duplicate intents (same idempotency key) receive the
// recorded result of the first execution; at most one adapter dispatch ever
// happens per key.
func (o *Orchestrator) Execute(ctx context.Context, intent domain.OrderIntent) domain.PipelineResult {
	// Stage 1: intent intake.
	if err := validateIntent(intent); err != nil {
		res := domain.PipelineResult{
			Success:      false,
			StageReached: domain.StageIntake,
			ReasonCode:   domain.ReasonContractInvalid,
			ReasonDetail: err.Error(),
		}
		o.appendAudit(ctx, domain.AuditEntry{
			TS:   time.Now().UTC(),
			Kind: domain.AuditKindIntent,
			Payload: map[string]any{
				"intent_id": intent.IntentID,
				"rejected":  err.Error(),
			},
		})
		return res
	}

	key := intent.IdempotencyKey()
	prior, commit, err := o.registry.Begin(ctx, key)
	if err != nil {
		return domain.PipelineResult{
			Success:        false,
			StageReached:   domain.StageIntake,
			IdempotencyKey: key,
			ReasonCode:     domain.ReasonCancelled,
			ReasonDetail:   err.Error(),
		}
	}
	if prior != nil {
		o.logger.InfoContext(ctx, "duplicate intent, returning recorded result",
			slog.String("intent_id", intent.IntentID),
			slog.String("idempotency_key", key),
		)
		return *prior
	}

	correlationID := uuid.New().String()
	log := o.logger.With(
		slog.String("correlation_id", correlationID),
		slog.String("intent_id", intent.IntentID),
		slog.String("symbol", intent.Symbol),
	)
	o.appendAudit(ctx, domain.AuditEntry{
		TS:            time.Now().UTC(),
		Kind:          domain.AuditKindIntent,
		CorrelationID: correlationID,
		Payload: map[string]any{
			"intent_id":       intent.IntentID,
			"symbol":          intent.Symbol,
			"side":            string(intent.Side),
			"quantity":        intent.Quantity,
			"order_type":      string(intent.OrderType),
			"idempotency_key": key,
		},
	})

	res := o.run(ctx, intent, key, correlationID, log)
	commit(res)
	o.appendAudit(ctx, domain.AuditEntry{
		TS:            time.Now().UTC(),
		Kind:          domain.AuditKindResult,
		CorrelationID: correlationID,
		Payload: map[string]any{
			"success":       res.Success,
			"stage_reached": res.StageReached.String(),
			"reason_code":   string(res.ReasonCode),
		},
	})
	return res
}

// run executes stages 2 through 8 as the leader for the idempotency key.
func (o *Orchestrator) run(ctx context.Context, intent domain.OrderIntent, key, correlationID string, log *slog.Logger) domain.PipelineResult {
	// Stage 2: contract validation.
	if err := validateContract(intent); err != nil {
		log.WarnContext(ctx, "contract validation failed", slog.String("error", err.Error()))
		return o.fail(ctx, nil, key, correlationID, domain.StageContract, domain.ReasonContractInvalid, err.Error(), domain.ResultMetadata{})
	}
	now := time.Now().UTC()
	order := &domain.Order{
		OrderID:        uuid.New().String(),
		CorrelationID:  correlationID,
		IdempotencyKey: key,
		Intent:         intent,
		State:          domain.OrderStateCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	o.auditStage(ctx, correlationID, domain.StageContract, string(order.State), nil)

	// Stage 3: kill switch, then risk gate.
	if state := o.safety.CurrentState(); state == killswitch.StateKilled {
		log.WarnContext(ctx, "admission refused, kill switch engaged")
		o.transition(order, domain.OrderStateRejected)
		return o.fail(ctx, order, key, correlationID, domain.StageRiskGate,
			domain.ReasonRiskRejectKillSwitch, "kill switch engaged, new admissions halted", domain.ResultMetadata{})
	}

	limits := o.limits.Scaled(o.safety.PositionLimitFactor())
	decision := o.gate.Evaluate(*order, o.snapshots.Snapshot(), limits)
	meta := domain.ResultMetadata{RiskDecision: &decision}
	o.appendAudit(ctx, domain.AuditEntry{
		TS:            time.Now().UTC(),
		Kind:          domain.AuditKindRisk,
		CorrelationID: correlationID,
		Payload: map[string]any{
			"action":  string(decision.Action),
			"allowed": decision.Allowed,
			"reasons": reasonCodes(decision),
		},
	})

	switch decision.Action {
	case domain.RiskActionAllow:
		o.transition(order, domain.OrderStateRiskAllowed)
	case domain.RiskActionPause:
		// PAUSE is terminal for this intent; a deferred-retry policy is not
		// specified, so it rejects like BLOCK under its own reason code.
		o.transition(order, domain.OrderStateRejected)
		return o.fail(ctx, order, key, correlationID, domain.StageRiskGate,
			domain.ReasonRiskRejectPause, riskDetail(decision), meta)
	case domain.RiskActionHalt:
		o.transition(order, domain.OrderStateRejected)
		if o.reporter != nil {
			o.reporter.RecordHardBreach(ctx, riskDetail(decision))
		}
		return o.fail(ctx, order, key, correlationID, domain.StageRiskGate,
			domain.ReasonRiskReject, riskDetail(decision), meta)
	default: // BLOCK
		o.transition(order, domain.OrderStateRejected)
		return o.fail(ctx, order, key, correlationID, domain.StageRiskGate,
			domain.ReasonRiskReject, riskDetail(decision), meta)
	}

	// Stage 4: route selection.
	target, err := o.router.Route(*order)
	if err != nil {
		o.transition(order, domain.OrderStateRejected)
		code := domain.ReasonRouteUnavailable
		if errors.Is(err, domain.ErrLiveNotEnabled) {
			code = domain.ReasonPolicyLiveNotEnabled
		}
		log.WarnContext(ctx, "route selection refused", slog.String("error", err.Error()))
		return o.fail(ctx, order, key, correlationID, domain.StageRoute, code, err.Error(), meta)
	}
	o.transition(order, domain.OrderStateRouted)
	meta.ExecutionMode = string(o.router.Mode())
	o.auditStage(ctx, correlationID, domain.StageRoute, string(order.State), map[string]any{"adapter": target.Name()})

	// Stage 5: adapter dispatch. Cancellation is honored up to this commit
	// point; once dispatched the pipeline waits for the adapter's answer.
	if err := ctx.Err(); err != nil {
		o.transition(order, domain.OrderStateFailed)
		return o.fail(ctx, order, key, correlationID, domain.StageDispatch,
			domain.ReasonCancelled, "intent cancelled before dispatch", meta)
	}
	evt, err := o.dispatcher.Dispatch(ctx, target, *order)
	if err != nil {
		o.transition(order, domain.OrderStateFailed)
		if o.reporter != nil {
			o.reporter.RecordDispatchFailure(ctx, err.Error())
		}
		log.ErrorContext(ctx, "dispatch exhausted", slog.String("error", err.Error()))
		return o.fail(ctx, order, key, correlationID, domain.StageDispatch,
			domain.ReasonDispatchExhausted, err.Error(), meta)
	}
	o.transition(order, domain.OrderStateDispatched)
	if o.reporter != nil {
		o.reporter.RecordDispatchSuccess()
	}
	meta.ExecutionEvent = &evt

	// Stage 6: execution event handling.
	result := domain.PipelineResult{
		Order:          order,
		CorrelationID:  correlationID,
		IdempotencyKey: key,
		Metadata:       meta,
	}
	switch evt.Kind {
	case domain.ExecutionEventAck:
		o.transition(order, domain.OrderStateAcked)
		result.Success = true
		result.ReasonCode = domain.ReasonOK
	case domain.ExecutionEventFill:
		o.transition(order, domain.OrderStateFilled)
		order.Fill = evt.Fill
		result.Success = true
		result.ReasonCode = domain.ReasonOK
		if o.portfolio != nil && evt.Fill != nil {
			delta := evt.Fill.Quantity
			if intent.Side == domain.SideSell {
				delta = -delta
			}
			o.portfolio.ApplyFill(intent.Symbol, delta, evt.Fill.Price, evt.Fill.Fee)
		}
	case domain.ExecutionEventReject:
		o.transition(order, domain.OrderStateRejected)
		result.Success = false
		result.ReasonCode = domain.ReasonAdapterReject
		result.ReasonDetail = evt.Reason
	default:
		o.transition(order, domain.OrderStateFailed)
		result.Success = false
		result.ReasonCode = domain.ReasonDispatchExhausted
		result.ReasonDetail = fmt.Sprintf("unknown execution event kind %q", evt.Kind)
	}
	o.auditStage(ctx, correlationID, domain.StageExecution, string(order.State), map[string]any{"event": string(evt.Kind)})
	result.StageReached = domain.StageExecution

	// Stage 7: post-trade hooks. Side-effect only; failures never change the
	// stage-6 outcome.
	ledger, posLedger := o.postTrade(ctx, order, result.ReasonCode, log)
	result.LedgerEntries = ledger
	result.StageReached = domain.StagePostTrade

	// Stage 8: recon hand-off. Purely additive, never blocks the result.
	o.handOff(ctx, order, ledger, posLedger, meta.ExecutionMode, log)
	result.StageReached = domain.StageRecon

	log.InfoContext(ctx, "pipeline completed",
		slog.Bool("success", result.Success),
		slog.String("state", string(order.State)),
		slog.String("reason_code", string(result.ReasonCode)),
	)
	return result
}

// postTrade appends the order and position ledger records and the final audit
// entry. Write failures are logged warnings only.
func (o *Orchestrator) postTrade(ctx context.Context, order *domain.Order, code domain.ReasonCode, log *slog.Logger) ([]domain.OrderLedgerRecord, []domain.PositionLedgerRecord) {
	now := time.Now().UTC()
	rec := domain.OrderLedgerRecord{
		OrderID:       order.OrderID,
		CorrelationID: order.CorrelationID,
		Symbol:        order.Intent.Symbol,
		Side:          order.Intent.Side,
		Quantity:      order.Intent.Quantity,
		State:         order.State,
		ReasonCode:    code,
		RecordedAt:    now,
	}
	if order.Fill != nil {
		rec.FillPrice = order.Fill.Price
		rec.FillFee = order.Fill.Fee
	}
	if o.orderLog != nil {
		if err := o.orderLog.Append(ctx, rec); err != nil {
			log.WarnContext(ctx, "order ledger write failed", slog.String("error", err.Error()))
		}
	}

	var posRecs []domain.PositionLedgerRecord
	if order.Fill != nil {
		delta := order.Fill.Quantity
		if order.Intent.Side == domain.SideSell {
			delta = -delta
		}
		posRec := domain.PositionLedgerRecord{
			OrderID:       order.OrderID,
			CorrelationID: order.CorrelationID,
			Symbol:        order.Intent.Symbol,
			UnitsDelta:    delta,
			Price:         order.Fill.Price,
			RecordedAt:    now,
		}
		posRecs = append(posRecs, posRec)
		if o.positions != nil {
			if err := o.positions.Append(ctx, posRec); err != nil {
				log.WarnContext(ctx, "position ledger write failed", slog.String("error", err.Error()))
			}
		}
	}

	o.auditStage(ctx, order.CorrelationID, domain.StagePostTrade, string(order.State), nil)
	return []domain.OrderLedgerRecord{rec}, posRecs
}

// handOff publishes the recon payload. Failures are logged, never surfaced.
func (o *Orchestrator) handOff(ctx context.Context, order *domain.Order, ledger []domain.OrderLedgerRecord, posLedger []domain.PositionLedgerRecord, mode string, log *slog.Logger) {
	if o.recon == nil {
		return
	}
	payload := domain.ReconPayload{
		Order:          *order,
		OrderLedger:    ledger,
		PositionLedger: posLedger,
		ExecutionMode:  mode,
		HandedOffAt:    time.Now().UTC(),
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := o.recon.Publish(pubCtx, payload); err != nil {
		log.WarnContext(ctx, "recon hand-off failed", slog.String("error", err.Error()))
	}
}

// fail concludes the pipeline at the given stage with a terminal reason.
func (o *Orchestrator) fail(ctx context.Context, order *domain.Order, key, correlationID string, stage domain.Stage, code domain.ReasonCode, detail string, meta domain.ResultMetadata) domain.PipelineResult {
	o.auditStage(ctx, correlationID, stage, string(code), map[string]any{"detail": detail})
	return domain.PipelineResult{
		Success:        false,
		Order:          order,
		StageReached:   stage,
		CorrelationID:  correlationID,
		IdempotencyKey: key,
		ReasonCode:     code,
		ReasonDetail:   detail,
		Metadata:       meta,
	}
}

func (o *Orchestrator) transition(order *domain.Order, state domain.OrderState) {
	order.State = state
	order.UpdatedAt = time.Now().UTC()
}

func (o *Orchestrator) auditStage(ctx context.Context, correlationID string, stage domain.Stage, outcome string, extra map[string]any) {
	payload := map[string]any{
		"stage":   stage.String(),
		"outcome": outcome,
	}
	for k, v := range extra {
		payload[k] = v
	}
	o.appendAudit(ctx, domain.AuditEntry{
		TS:            time.Now().UTC(),
		Kind:          domain.AuditKindStage,
		CorrelationID: correlationID,
		Payload:       payload,
	})
}

func (o *Orchestrator) appendAudit(ctx context.Context, entry domain.AuditEntry) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Append(ctx, entry); err != nil {
		o.logger.WarnContext(ctx, "audit append failed",
			slog.String("kind", string(entry.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

// validateIntent enforces the stage-1 structural checks.
func validateIntent(intent domain.OrderIntent) error {
	if intent.IntentID == "" {
		return fmt.Errorf("%w: intent_id must not be empty", domain.ErrIntentInvalid)
	}
	if intent.Symbol == "" {
		return fmt.Errorf("%w: symbol must not be empty", domain.ErrIntentInvalid)
	}
	if intent.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0, got %v", domain.ErrIntentInvalid, intent.Quantity)
	}
	switch intent.Side {
	case domain.SideBuy, domain.SideSell:
	default:
		return fmt.Errorf("%w: unknown side %q", domain.ErrIntentInvalid, intent.Side)
	}
	return nil
}

// validateContract enforces the stage-2 contract checks that bind an intent
// to a session and run.
func validateContract(intent domain.OrderIntent) error {
	if intent.RunID == "" {
		return fmt.Errorf("%w: run_id must not be empty", domain.ErrContractInvalid)
	}
	if intent.SessionID == "" {
		return fmt.Errorf("%w: session_id must not be empty", domain.ErrContractInvalid)
	}
	switch intent.OrderType {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if intent.LimitPrice <= 0 {
			return fmt.Errorf("%w: limit_price required for LIMIT orders", domain.ErrContractInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown order_type %q", domain.ErrContractInvalid, intent.OrderType)
	}
	return nil
}

// riskDetail summarizes a rejecting decision for the result detail field.
func riskDetail(d domain.RiskDecision) string {
	for _, r := range d.Reasons {
		if r.Severity == domain.RiskSeverityHard {
			return fmt.Sprintf("%s: %s", r.Code, r.Message)
		}
	}
	if len(d.Reasons) > 0 {
		return fmt.Sprintf("%s: %s", d.Reasons[0].Code, d.Reasons[0].Message)
	}
	return "risk gate rejected order"
}

func reasonCodes(d domain.RiskDecision) []string {
	codes := make([]string, 0, len(d.Reasons))
	for _, r := range d.Reasons {
		codes = append(codes, r.Code)
	}
	return codes
}
