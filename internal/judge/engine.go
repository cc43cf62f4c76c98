package judge

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/0xguardapp/0xguard-engine/internal/judge/audit"
	"github.com/0xguardapp/0xguard-engine/internal/judge/metrics"
	"github.com/0xguardapp/0xguard-engine/internal/judge/payout"
	"github.com/0xguardapp/0xguard-engine/internal/judge/ratelimit"
	"github.com/0xguardapp/0xguard-engine/internal/judge/verifier"
	"github.com/0xguardapp/0xguard-engine/pkg/client/midnight"
	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

const (
	// The attack flow keeps only the most recent observations; a target
	// success response is correlated against this window.
	maxAttackFlow = 10

	maxProofRecords = 1000

	registryWriteTimeout = 10 * time.Second
)

// ProofClient is the engine's view of the external proof service.
type ProofClient interface {
	SubmitProof(ctx context.Context, req midnight.SubmitRequest) types.ProofResult
	QueryAudit(ctx context.Context, auditID string) midnight.QueryResult
	CheckHealth(ctx context.Context, forceCheck bool) midnight.HealthStatus
}

// ReputationRegistry is the engine's view of the on-chain agent registry.
// Writes are side effects of engine decisions and never block them.
type ReputationRegistry interface {
	UpdateReputation(ctx context.Context, agent string, delta int64, evidenceURI string) (string, error)
	ValidateAgent(ctx context.Context, agent string, evidenceURI string, verified bool) (string, error)
}

// Config wires the engine's collaborators and policy knobs.
type Config struct {
	AuditorAddress string
	RiskThreshold  int
}

// ClaimOutcome is the full result of handling one exploit claim: the
// verification verdict, and, when the claim is valid, the payout and proof
// submission outcomes.
type ClaimOutcome struct {
	Verdict types.VerificationVerdict `json:"verdict"`
	Payout  *types.PayoutResult       `json:"payout,omitempty"`
	Proof   *types.ProofResult        `json:"proof,omitempty"`
	AuditID string                    `json:"audit_id,omitempty"`
}

// Engine composes the verifier, rate limiter, payout dispatcher, proof
// client and audit trail into the judge's decision pipeline.
type Engine struct {
	logger     logging.Logger
	config     Config
	verifier   *verifier.Verifier
	limiter    *ratelimit.Limiter
	budget     *payout.Budget
	dispatcher *payout.Dispatcher
	trail      *audit.Trail
	proofs     ProofClient
	registry   ReputationRegistry
	oracle     ScoreOracle

	mu         sync.Mutex
	attackFlow []types.AttackObservation
	proofByID  map[string]types.ProofRecord
	proofOrder []string

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cron   *cron.Cron
}

// NewEngine creates the engine. registry may be nil when no chain is
// configured; oracle defaults to the static scorer.
func NewEngine(
	logger logging.Logger,
	config Config,
	v *verifier.Verifier,
	limiter *ratelimit.Limiter,
	budget *payout.Budget,
	dispatcher *payout.Dispatcher,
	trail *audit.Trail,
	proofs ProofClient,
	registry ReputationRegistry,
	oracle ScoreOracle,
) *Engine {
	if oracle == nil {
		oracle = StaticOracle{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		logger:     logger,
		config:     config,
		verifier:   v,
		limiter:    limiter,
		budget:     budget,
		dispatcher: dispatcher,
		trail:      trail,
		proofs:     proofs,
		registry:   registry,
		oracle:     oracle,
		proofByID:  make(map[string]types.ProofRecord),
		ctx:        ctx,
		cancel:     cancel,
		cron:       cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start launches the background jobs: the midnight UTC daily summary.
func (e *Engine) Start() error {
	if _, err := e.cron.AddFunc("0 0 * * *", e.emitDailySummary); err != nil {
		return err
	}
	e.cron.Start()
	e.logger.Infof("Judge engine started (threshold=%d, auditor=%s)", e.config.RiskThreshold, e.config.AuditorAddress)
	return nil
}

// Stop halts background jobs and waits for in-flight side effects.
func (e *Engine) Stop() {
	e.cancel()
	cronCtx := e.cron.Stop()
	<-cronCtx.Done()
	e.wg.Wait()
	e.logger.Infof("Judge engine stopped")
}

// ObserveAttack records one observed attack attempt against a target. The
// observation enters the attack flow for later correlation and the audit
// trail for the stats surface.
func (e *Engine) ObserveAttack(obs types.AttackObservation) {
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}

	e.mu.Lock()
	e.attackFlow = append(e.attackFlow, obs)
	if len(e.attackFlow) > maxAttackFlow {
		e.attackFlow = e.attackFlow[len(e.attackFlow)-maxAttackFlow:]
	}
	e.mu.Unlock()

	e.logger.Infof("Attack observed: %s -> %s (%s)", obs.SubmitterID, obs.TargetID, obs.ExploitType)
	metrics.AttacksObservedTotal.Inc()

	e.trail.Record(types.AuditEvent{
		Type:        types.EventAttack,
		SubmitterID: obs.SubmitterID,
		TargetID:    obs.TargetID,
		ExploitType: obs.ExploitType,
		Payload:     obs.Payload,
	})
}

// CorrelateAttack returns the most recent observed attack against the given
// target, if any. Used to attribute a target's success response back to the
// submitter that produced it.
func (e *Engine) CorrelateAttack(targetID string) (types.AttackObservation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := len(e.attackFlow) - 1; i >= 0; i-- {
		if e.attackFlow[i].TargetID == targetID {
			return e.attackFlow[i], true
		}
	}
	return types.AttackObservation{}, false
}

// AttackFlow returns a copy of the current correlation window.
func (e *Engine) AttackFlow() []types.AttackObservation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.AttackObservation, len(e.attackFlow))
	copy(out, e.attackFlow)
	return out
}

// HandleClaim runs one exploit claim through the full pipeline: verification,
// payout dispatch, proof submission, and the registry side effects.
func (e *Engine) HandleClaim(ctx context.Context, submitterID string, claim types.ExploitClaim) ClaimOutcome {
	verdict := e.verifier.Verify(claim)

	e.trail.Record(types.AuditEvent{
		Type:        types.EventVerification,
		Success:     verdict.IsValid,
		SubmitterID: submitterID,
		TargetID:    claim.TargetID,
		Severity:    verdict.Severity,
		Amount:      verdict.BountyAmount,
		Reason:      verdict.Reason,
		ExploitType: claim.ExploitDetails[types.DetailExploitType],
	})

	if !verdict.IsValid {
		e.logger.Infof("Claim from %s rejected: %s", submitterID, verdict.Reason)
		metrics.VerificationsTotal.WithLabelValues("rejected").Inc()
		return ClaimOutcome{Verdict: verdict}
	}

	e.logger.Infof("Claim from %s verified: severity=%s bounty=%d", submitterID, verdict.Severity, verdict.BountyAmount)
	metrics.VerificationsTotal.WithLabelValues("valid").Inc()

	outcome := ClaimOutcome{Verdict: verdict}

	payoutResult := e.dispatcher.Dispatch(ctx, submitterID, verdict.BountyAmount, claim.ExploitDetails)
	outcome.Payout = &payoutResult

	e.trail.Record(types.AuditEvent{
		Type:        types.EventPayout,
		Success:     payoutResult.Success,
		SubmitterID: submitterID,
		TargetID:    claim.TargetID,
		Severity:    verdict.Severity,
		Amount:      payoutResult.PaidAmount,
		TxReference: payoutResult.TxReference,
		Reason:      payoutResult.Reason,
	})
	metrics.DailyBudgetRemaining.Set(float64(e.budget.Remaining()))

	if payoutResult.Success {
		metrics.BountiesPaidTotal.WithLabelValues(string(verdict.Severity)).Inc()
		metrics.BountyAmountTotal.Add(float64(payoutResult.PaidAmount))
		e.writeReputation(submitterID, payoutResult.PaidAmount, payoutResult.TxReference)
	}

	auditID, proofResult := e.submitProof(ctx, submitterID, claim)
	outcome.AuditID = auditID
	outcome.Proof = &proofResult

	return outcome
}

func (e *Engine) submitProof(ctx context.Context, submitterID string, claim types.ExploitClaim) (string, types.ProofResult) {
	payload := claim.ExploitDetails[types.DetailPayload]
	timestamp := claim.ExploitDetails[types.DetailTimestamp]
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	report, err := e.oracle.Score(ctx, claim.ExploitDetails[types.DetailExploitType], payload)
	if err != nil {
		e.logger.Warnf("Risk scoring failed, skipping proof submission: %v", err)
		e.trail.RecordError()
		metrics.ErrorsTotal.Inc()
		return "", types.ProofResult{Success: false, Error: err.Error()}
	}

	auditID := midnight.GenerateAuditID(payload, timestamp)
	result := e.proofs.SubmitProof(ctx, midnight.SubmitRequest{
		AuditID:        auditID,
		ExploitPayload: payload,
		RiskScore:      report.RiskScore,
		AuditorAddr:    e.config.AuditorAddress,
		Threshold:      e.config.RiskThreshold,
	})

	status := types.ProofFailed
	if result.Success {
		status = types.ProofSubmitted
		metrics.ProofSubmissionsTotal.WithLabelValues("success").Inc()
	} else {
		metrics.ProofSubmissionsTotal.WithLabelValues("failure").Inc()
		e.trail.RecordError()
	}

	e.recordProof(types.ProofRecord{
		AuditID:            auditID,
		ProofHash:          result.ProofHash,
		TransactionID:      result.TransactionID,
		VerificationStatus: status,
		RiskScore:          report.RiskScore,
		Threshold:          e.config.RiskThreshold,
		CreatedAt:          time.Now().UTC(),
	})

	if result.Success {
		e.writeValidation(submitterID, auditID)
	}

	return auditID, result
}

func (e *Engine) recordProof(record types.ProofRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.proofByID[record.AuditID]; !exists {
		e.proofOrder = append(e.proofOrder, record.AuditID)
		if len(e.proofOrder) > maxProofRecords {
			evicted := e.proofOrder[0]
			e.proofOrder = e.proofOrder[1:]
			delete(e.proofByID, evicted)
		}
	}
	e.proofByID[record.AuditID] = record
}

// Proof returns the bookkeeping record for a submitted audit.
func (e *Engine) Proof(auditID string) (types.ProofRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	record, ok := e.proofByID[auditID]
	return record, ok
}

// RefreshProof queries the proof service for the audit's current
// verification status and updates the local record.
func (e *Engine) RefreshProof(ctx context.Context, auditID string) (types.ProofRecord, bool) {
	e.mu.Lock()
	record, ok := e.proofByID[auditID]
	e.mu.Unlock()
	if !ok {
		return types.ProofRecord{}, false
	}

	result := e.proofs.QueryAudit(ctx, auditID)
	if result.Found {
		if result.IsVerified {
			record.VerificationStatus = types.ProofVerified
		} else {
			record.VerificationStatus = types.ProofPending
		}
		if result.ProofHash != "" {
			record.ProofHash = result.ProofHash
		}
		e.recordProof(record)
	}
	return record, true
}

// writeReputation credits the submitter's on-chain reputation after a paid
// bounty. Fire and forget: failures are logged and counted, never retried.
func (e *Engine) writeReputation(submitterID string, amount int64, evidenceURI string) {
	if e.registry == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(e.ctx, registryWriteTimeout)
		defer cancel()

		if _, err := e.registry.UpdateReputation(ctx, submitterID, amount, evidenceURI); err != nil {
			e.logger.Warnf("Reputation update for %s failed: %v", submitterID, err)
			metrics.RegistryWritesTotal.WithLabelValues("failure").Inc()
			e.trail.RecordError()
			return
		}
		metrics.RegistryWritesTotal.WithLabelValues("success").Inc()
	}()
}

// writeValidation marks the audit as verified for the submitter on chain.
func (e *Engine) writeValidation(submitterID, auditID string) {
	if e.registry == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(e.ctx, registryWriteTimeout)
		defer cancel()

		if _, err := e.registry.ValidateAgent(ctx, submitterID, auditID, true); err != nil {
			e.logger.Warnf("Agent validation for %s failed: %v", submitterID, err)
			metrics.RegistryWritesTotal.WithLabelValues("failure").Inc()
			e.trail.RecordError()
			return
		}
		metrics.RegistryWritesTotal.WithLabelValues("success").Inc()
	}()
}

// Stats snapshots the engine's aggregate counters.
func (e *Engine) Stats() types.EngineStats {
	return e.trail.Stats()
}

// Earnings summarizes one submitter's collected bounties.
func (e *Engine) Earnings(submitterID string) types.SubmitterEarnings {
	return e.trail.Earnings(submitterID)
}

// RecentEvents returns the most recent audit events of one category.
func (e *Engine) RecentEvents(eventType types.AuditEventType, limit int) []types.AuditEvent {
	return e.trail.Recent(eventType, limit)
}

// PayoutHistory returns the dispatcher's bounded payout record.
func (e *Engine) PayoutHistory() []types.PayoutRecord {
	return e.dispatcher.History()
}

// Health reports the engine's operational condition.
type Health struct {
	Healthy             bool   `json:"healthy"`
	BudgetExhausted     bool   `json:"budget_exhausted"`
	BudgetRemaining     int64  `json:"budget_remaining"`
	ProofServiceHealthy bool   `json:"proof_service_healthy"`
	ProofServiceError   string `json:"proof_service_error,omitempty"`
}

// CheckHealth probes the proof service (through its cache) and reports the
// engine's condition. Budget exhaustion degrades health but does not stop
// claim handling.
func (e *Engine) CheckHealth(ctx context.Context) Health {
	proofHealth := e.proofs.CheckHealth(ctx, false)

	h := Health{
		BudgetExhausted:     e.budget.Exhausted(),
		BudgetRemaining:     e.budget.Remaining(),
		ProofServiceHealthy: proofHealth.IsHealthy,
		ProofServiceError:   proofHealth.Error,
	}
	h.Healthy = !h.BudgetExhausted && h.ProofServiceHealthy
	return h
}

// emitDailySummary records a summary audit event with the previous day's
// aggregate counters. Budget rollover itself stays lazy in the budget.
func (e *Engine) emitDailySummary() {
	stats := e.trail.Stats()
	e.logger.Infof("Daily summary: attacks=%d verified=%d paid=%d total=%d errors=%d",
		stats.AttacksMonitored, stats.ExploitsVerified, stats.BountiesPaid, stats.TotalBountyAmount, stats.Errors)

	e.trail.Record(types.AuditEvent{
		Type:   types.EventSummary,
		Amount: stats.TotalBountyAmount,
		Reason: "daily summary",
	})
}
