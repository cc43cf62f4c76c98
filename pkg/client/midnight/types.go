package midnight

import "time"

const (
	DefaultSubmitTimeout = 60 * time.Second
	DefaultQueryTimeout  = 15 * time.Second
	DefaultHealthTimeout = 5 * time.Second
	DefaultHealthTTL     = 30 * time.Second

	// Witness exploit payloads are packed into a fixed-width field for the
	// downstream proof circuit.
	WitnessPayloadSize = 64
)

// Config holds the connection settings for the proof service bridge.
type Config struct {
	APIURL          string
	ContractAddress string

	// SimulationMode short-circuits submissions with deterministic simulated
	// proofs. Explicit opt-in only; every simulated submission is logged.
	SimulationMode bool

	SubmitTimeout time.Duration
	QueryTimeout  time.Duration
	HealthTimeout time.Duration
	HealthTTL     time.Duration
}

func (c *Config) applyDefaults() {
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = DefaultSubmitTimeout
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = DefaultHealthTimeout
	}
	if c.HealthTTL <= 0 {
		c.HealthTTL = DefaultHealthTTL
	}
}

// SubmitRequest carries one audit proof submission.
type SubmitRequest struct {
	AuditID        string
	ExploitPayload string
	RiskScore      int
	AuditorAddr    string
	Threshold      int
}

// Witness is the fixed-width private input sent to the proof circuit.
// The payload field serializes as an array of byte values.
type Witness struct {
	ExploitString [WitnessPayloadSize]byte `json:"exploitString"`
	RiskScore     int                      `json:"riskScore"`
}

// HealthStatus is the cached view of the proof service's health endpoint.
type HealthStatus struct {
	IsHealthy       bool   `json:"is_healthy"`
	Initialized     bool   `json:"initialized"`
	ContractAddress string `json:"contract_address,omitempty"`
	Error           string `json:"error,omitempty"`
}

// QueryResult is the outcome of an audit status query.
type QueryResult struct {
	Found      bool   `json:"found"`
	AuditID    string `json:"audit_id"`
	ProofHash  string `json:"proof_hash,omitempty"`
	IsVerified bool   `json:"is_verified"`
	Error      string `json:"error,omitempty"`
}

type submitAuditRequest struct {
	AuditID     string  `json:"audit_id"`
	AuditorAddr string  `json:"auditor_addr"`
	Threshold   int     `json:"threshold"`
	Witness     Witness `json:"witness"`
}

type submitAuditResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	BlockHeight   int64  `json:"block_height"`
	Error         string `json:"error,omitempty"`
}

type queryAuditRequest struct {
	AuditID string `json:"audit_id"`
}

type queryAuditResponse struct {
	Found      bool   `json:"found"`
	AuditID    string `json:"audit_id"`
	ProofHash  string `json:"proof_hash"`
	IsVerified bool   `json:"is_verified"`
	Detail     string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status          string `json:"status"`
	ContractAddress string `json:"contract_address"`
}
