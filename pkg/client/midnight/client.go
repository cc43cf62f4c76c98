package midnight

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/retry"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

var (
	// ErrBelowThreshold is returned before any network call when the risk
	// score does not meet the proof threshold.
	ErrBelowThreshold = errors.New("risk score below threshold")

	// errPermanent marks client-side (4xx) failures that must not be retried.
	errPermanent = errors.New("permanent proof service error")

	// errNotFound marks a terminal not-found query response.
	errNotFound = errors.New("audit not found")
)

// GenerateAuditID derives the deterministic audit identifier from the exploit
// payload and its timestamp. Identical inputs always yield the same id.
func GenerateAuditID(exploitPayload, timestamp string) string {
	sum := sha256.Sum256([]byte(exploitPayload + timestamp))
	return hex.EncodeToString(sum[:])
}

// PackWitness packs the exploit payload into the circuit's fixed 64-byte
// field: truncated if longer, zero-padded if shorter.
func PackWitness(exploitPayload string, riskScore int) Witness {
	var w Witness
	copy(w.ExploitString[:], exploitPayload)
	w.RiskScore = riskScore
	return w
}

// Client talks to the external zero-knowledge proof service. Submissions are
// gated by a cached health probe and retried with exponential backoff and
// jitter; client errors are surfaced immediately.
type Client struct {
	logger      logging.Logger
	config      Config
	httpClient  *http.Client
	retryConfig *retry.RetryConfig
	now         func() time.Time

	healthMu        sync.Mutex
	lastHealthCheck time.Time
	healthy         bool
	contractAddress string
}

func NewClient(logger logging.Logger, config Config) *Client {
	config.applyDefaults()

	retryConfig := retry.DefaultRetryConfig()
	retryConfig.MaxRetries = 3
	retryConfig.InitialDelay = time.Second
	retryConfig.JitterFactor = 0.5
	retryConfig.ShouldRetry = func(err error, attempt int) bool {
		return !errors.Is(err, errPermanent) && !errors.Is(err, errNotFound)
	}

	return &Client{
		logger:      logger,
		config:      config,
		httpClient:  &http.Client{},
		retryConfig: retryConfig,
		now:         time.Now,
	}
}

// SetRetryConfig overrides the backoff policy. Intended for tests.
func (c *Client) SetRetryConfig(cfg *retry.RetryConfig) {
	cfg.ShouldRetry = c.retryConfig.ShouldRetry
	c.retryConfig = cfg
}

// SetClock overrides the health-cache clock. Intended for tests.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// CheckHealth reports whether the proof service is reachable and its contract
// initialized. Results are cached for the configured TTL; forceCheck bypasses
// the cache.
func (c *Client) CheckHealth(ctx context.Context, forceCheck bool) HealthStatus {
	// Simulated proofs never touch the service, so there is nothing to probe.
	if c.config.SimulationMode {
		return HealthStatus{
			IsHealthy:       true,
			Initialized:     true,
			ContractAddress: c.config.ContractAddress,
		}
	}

	c.healthMu.Lock()
	if !forceCheck && !c.lastHealthCheck.IsZero() && c.now().Sub(c.lastHealthCheck) < c.config.HealthTTL {
		status := HealthStatus{
			IsHealthy:       c.healthy,
			Initialized:     c.contractAddress != "",
			ContractAddress: c.contractAddress,
		}
		c.healthMu.Unlock()
		return status
	}
	c.healthMu.Unlock()

	status := c.probeHealth(ctx)

	c.healthMu.Lock()
	c.lastHealthCheck = c.now()
	c.healthy = status.IsHealthy
	c.contractAddress = status.ContractAddress
	c.healthMu.Unlock()

	return status
}

func (c *Client) probeHealth(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.APIURL+"/health", nil)
	if err != nil {
		return HealthStatus{Error: fmt.Sprintf("failed to create health request: %v", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warnf("Proof service health check failed: %v", err)
		return HealthStatus{Error: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warnf("Proof service health check returned status %d", resp.StatusCode)
		return HealthStatus{Error: fmt.Sprintf("health check returned status %d", resp.StatusCode)}
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return HealthStatus{Error: fmt.Sprintf("failed to decode health response: %v", err)}
	}

	return HealthStatus{
		IsHealthy:       health.Status == "healthy",
		Initialized:     health.ContractAddress != "",
		ContractAddress: health.ContractAddress,
	}
}

// SubmitProof submits one audit proof. The result is structured; transient
// service failures are retried with backoff and never surface as errors.
func (c *Client) SubmitProof(ctx context.Context, req SubmitRequest) types.ProofResult {
	if req.RiskScore < req.Threshold {
		err := fmt.Errorf("%w: risk score %d is below threshold %d", ErrBelowThreshold, req.RiskScore, req.Threshold)
		c.logger.Errorf("Proof submission rejected: %v", err)
		return types.ProofResult{Success: false, Error: err.Error()}
	}

	if c.config.SimulationMode {
		return c.simulateProof(req)
	}

	health := c.CheckHealth(ctx, false)
	if !health.IsHealthy {
		msg := fmt.Sprintf("proof service is unavailable: %s", health.Error)
		c.logger.Errorf("%s", msg)
		return types.ProofResult{Success: false, Error: msg}
	}

	payload := submitAuditRequest{
		AuditID:     req.AuditID,
		AuditorAddr: req.AuditorAddr,
		Threshold:   req.Threshold,
		Witness:     PackWitness(req.ExploitPayload, req.RiskScore),
	}

	c.logger.Infof("Submitting proof for audit %s (risk_score=%d, threshold=%d)", shortAuditID(req.AuditID), req.RiskScore, req.Threshold)

	result, err := retry.Retry(ctx, func() (submitAuditResponse, error) {
		return c.postSubmitAudit(ctx, payload)
	}, c.retryConfig, c.logger)
	if err != nil {
		c.logger.Errorf("Proof submission failed: %v", err)
		return types.ProofResult{Success: false, Error: err.Error()}
	}

	txID := result.TransactionID
	if txID == "" {
		// The result must never be left un-identified.
		txID = fallbackProofHash(req.AuditID)
		c.logger.Warnf("No transaction_id in response, using fallback hash %s", txID)
	}

	c.logger.Infof("Proof submitted successfully. Hash: %s (block: %d)", txID, result.BlockHeight)

	return types.ProofResult{
		Success:       true,
		ProofHash:     txID,
		TransactionID: txID,
		BlockHeight:   result.BlockHeight,
	}
}

func (c *Client) postSubmitAudit(ctx context.Context, payload submitAuditRequest) (submitAuditResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.SubmitTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return submitAuditResponse{}, fmt.Errorf("%w: failed to marshal submit request: %v", errPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL+"/api/submit-audit", bytes.NewReader(body))
	if err != nil {
		return submitAuditResponse{}, fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return submitAuditResponse{}, fmt.Errorf("submit request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result submitAuditResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return submitAuditResponse{}, fmt.Errorf("failed to decode submit response: %w", err)
		}
		if !result.Success {
			return submitAuditResponse{}, fmt.Errorf("%w: %s", errPermanent, result.Error)
		}
		return result, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		detail := readErrorDetail(resp.Body)
		return submitAuditResponse{}, fmt.Errorf("%w: HTTP %d: %s", errPermanent, resp.StatusCode, detail)

	default:
		return submitAuditResponse{}, fmt.Errorf("server error: HTTP %d", resp.StatusCode)
	}
}

// simulateProof produces a deterministic simulated proof without touching the
// network. Only reachable when simulation mode is explicitly enabled.
func (c *Client) simulateProof(req SubmitRequest) types.ProofResult {
	c.logger.Warnf("SIMULATION MODE: generating simulated proof for audit %s", shortAuditID(req.AuditID))

	proofHash := fallbackProofHash(req.AuditID)
	return types.ProofResult{
		Success:       true,
		ProofHash:     proofHash,
		TransactionID: proofHash,
	}
}

// QueryAudit fetches the verification status of a previously submitted audit.
// A not-found or not-initialized response is terminal and reported as
// Found=false rather than an error.
func (c *Client) QueryAudit(ctx context.Context, auditID string) QueryResult {
	c.logger.Infof("Querying audit status: %s", shortAuditID(auditID))

	result, err := retry.Retry(ctx, func() (queryAuditResponse, error) {
		return c.postQueryAudit(ctx, auditID)
	}, c.retryConfig, c.logger)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return QueryResult{Found: false, AuditID: auditID}
		}
		c.logger.Errorf("Audit query failed: %v", err)
		return QueryResult{Found: false, AuditID: auditID, Error: err.Error()}
	}

	if !result.Found {
		return QueryResult{Found: false, AuditID: auditID}
	}

	return QueryResult{
		Found:      true,
		AuditID:    auditID,
		ProofHash:  result.ProofHash,
		IsVerified: result.IsVerified,
	}
}

func (c *Client) postQueryAudit(ctx context.Context, auditID string) (queryAuditResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.QueryTimeout)
	defer cancel()

	body, err := json.Marshal(queryAuditRequest{AuditID: auditID})
	if err != nil {
		return queryAuditResponse{}, fmt.Errorf("%w: %v", errPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL+"/api/query-audit", bytes.NewReader(body))
	if err != nil {
		return queryAuditResponse{}, fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return queryAuditResponse{}, fmt.Errorf("query request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result queryAuditResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return queryAuditResponse{}, fmt.Errorf("failed to decode query response: %w", err)
		}
		return result, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		detail := readErrorDetail(resp.Body)
		c.logger.Warnf("Audit query returned client error: %s", detail)
		return queryAuditResponse{}, errNotFound

	default:
		return queryAuditResponse{}, fmt.Errorf("server error: HTTP %d", resp.StatusCode)
	}
}

func fallbackProofHash(auditID string) string {
	if len(auditID) > 32 {
		auditID = auditID[:32]
	}
	return "zk_proof_" + auditID
}

func shortAuditID(auditID string) string {
	if len(auditID) <= 16 {
		return auditID
	}
	return auditID[:16] + "..."
}

func readErrorDetail(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var parsed struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return string(raw)
}
