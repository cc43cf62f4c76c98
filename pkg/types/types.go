package types

import "time"

// Well-known keys inside ExploitDetails.
const (
	DetailExploitType = "exploit_type"
	DetailPayload     = "payload"
	DetailTimestamp   = "timestamp"
)

// ExploitDetails carries the free-form attributes of a claimed exploit.
// Keys are sorted during canonical serialization, so two semantically
// identical detail sets always hash to the same digest.
type ExploitDetails map[string]string

// AttackObservation is recorded when a submitter's action against a target
// is observed. Immutable once created.
type AttackObservation struct {
	SubmitterID string    `json:"submitter_id"`
	TargetID    string    `json:"target_id"`
	ExploitType string    `json:"exploit_type"`
	Payload     string    `json:"payload"`
	ObservedAt  time.Time `json:"observed_at"`
}

// ExploitClaim is a submitter's assertion that an attack succeeded.
type ExploitClaim struct {
	Success         bool           `json:"success"`
	ExtractedSecret string         `json:"extracted_secret,omitempty"`
	TargetID        string         `json:"target_id"`
	ExploitDetails  ExploitDetails `json:"exploit_details"`
	ClaimedAt       time.Time      `json:"claimed_at"`
}

// VerificationVerdict is the validity/severity/bounty decision for one claim.
// Derived once, never mutated.
type VerificationVerdict struct {
	IsValid      bool     `json:"is_valid"`
	Severity     Severity `json:"severity"`
	BountyAmount int64    `json:"bounty_amount"`
	Reason       string   `json:"reason"`
}

type PayoutStatus string

const (
	PayoutSuccess PayoutStatus = "success"
	PayoutFailed  PayoutStatus = "failed"
)

// PayoutRecord is an immutable record of one bounty payout attempt.
type PayoutRecord struct {
	SubmitterID   string       `json:"submitter_id"`
	Amount        int64        `json:"amount"`
	TxReference   string       `json:"tx_reference"`
	Status        PayoutStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	ExploitDigest string       `json:"exploit_digest"`
}

// PayoutResult is the outcome returned to the caller of a dispatch.
type PayoutResult struct {
	Success     bool   `json:"success"`
	TxReference string `json:"tx_reference"`
	PaidAmount  int64  `json:"paid_amount"`
	Reason      string `json:"reason,omitempty"`
}

type ProofStatus string

const (
	ProofSubmitted ProofStatus = "submitted"
	ProofVerified  ProofStatus = "verified"
	ProofPending   ProofStatus = "pending"
	ProofFailed    ProofStatus = "failed"
)

// ProofRecord tracks one audit proof submitted to the external verifier.
// AuditID is a deterministic digest of (exploit payload, timestamp).
type ProofRecord struct {
	AuditID            string      `json:"audit_id"`
	ProofHash          string      `json:"proof_hash"`
	TransactionID      string      `json:"transaction_id"`
	VerificationStatus ProofStatus `json:"verification_status"`
	RiskScore          int         `json:"risk_score"`
	Threshold          int         `json:"threshold"`
	CreatedAt          time.Time   `json:"created_at"`
}

// ProofResult is the outcome of one proof submission.
type ProofResult struct {
	Success       bool   `json:"success"`
	ProofHash     string `json:"proof_hash,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	BlockHeight   int64  `json:"block_height,omitempty"`
	Error         string `json:"error,omitempty"`
}

type AuditEventType string

const (
	EventAttack       AuditEventType = "attack"
	EventVerification AuditEventType = "verification"
	EventPayout       AuditEventType = "payout"
	EventSummary      AuditEventType = "summary"
)

// AuditEvent is one entry in the engine's append-only compliance record.
type AuditEvent struct {
	ID          string         `json:"id"`
	Type        AuditEventType `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	Success     bool           `json:"success,omitempty"`
	SubmitterID string         `json:"submitter_id,omitempty"`
	TargetID    string         `json:"target_id,omitempty"`
	Severity    Severity       `json:"severity,omitempty"`
	Amount      int64          `json:"amount,omitempty"`
	TxReference string         `json:"tx_reference,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	ExploitType string         `json:"exploit_type,omitempty"`
	Payload     string         `json:"payload,omitempty"`
}

// EngineStats is the aggregate view exposed on the stats surface.
type EngineStats struct {
	AttacksMonitored  int64 `json:"attacks_monitored"`
	ExploitsVerified  int64 `json:"exploits_verified"`
	BountiesPaid      int64 `json:"bounties_paid"`
	TotalBountyAmount int64 `json:"total_bounty_amount"`
	Errors            int64 `json:"errors"`
}

// SubmitterEarnings summarizes the bounties one submitter has collected.
type SubmitterEarnings struct {
	SubmitterID string  `json:"submitter_id"`
	TotalEarned int64   `json:"total_earned"`
	BountyCount int64   `json:"bounty_count"`
	AvgBounty   float64 `json:"avg_bounty"`
}
