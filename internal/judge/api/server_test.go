package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xguardapp/0xguard-engine/internal/judge"
	"github.com/0xguardapp/0xguard-engine/internal/judge/audit"
	"github.com/0xguardapp/0xguard-engine/internal/judge/payout"
	"github.com/0xguardapp/0xguard-engine/internal/judge/ratelimit"
	"github.com/0xguardapp/0xguard-engine/internal/judge/transport"
	"github.com/0xguardapp/0xguard-engine/internal/judge/verifier"
	"github.com/0xguardapp/0xguard-engine/pkg/client/midnight"
	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

type stubPayments struct{}

func (stubPayments) SaveBountyToken(ctx context.Context, recipient, exploitString string) (string, error) {
	return "0xtx1", nil
}

type stubProofs struct {
	healthy bool
}

func (s stubProofs) SubmitProof(ctx context.Context, req midnight.SubmitRequest) types.ProofResult {
	return types.ProofResult{Success: true, ProofHash: "0xproof", TransactionID: "0xproof"}
}

func (s stubProofs) QueryAudit(ctx context.Context, auditID string) midnight.QueryResult {
	return midnight.QueryResult{Found: true, AuditID: auditID, IsVerified: true}
}

func (s stubProofs) CheckHealth(ctx context.Context, forceCheck bool) midnight.HealthStatus {
	return midnight.HealthStatus{IsHealthy: s.healthy}
}

func newTestServer(t *testing.T, healthy bool) (*Server, *judge.Engine) {
	t.Helper()
	srv, engine, _ := newTestServerWithBus(t, healthy)
	return srv, engine
}

func newTestServerWithBus(t *testing.T, healthy bool) (*Server, *judge.Engine, *transport.LocalBus) {
	t.Helper()
	logger := logging.NewNoOpLogger()

	v := verifier.New(logger, "fetch_ai_2024", verifier.DefaultRules(), nil)
	limiter := ratelimit.NewLimiter(logger, ratelimit.DefaultConfig())
	budget := payout.NewBudget(logger, payout.DefaultDailyCap)
	dispatcher := payout.NewDispatcher(logger, limiter, budget, stubPayments{})
	trail := audit.NewTrail(logger, nil)

	engine := judge.NewEngine(logger, judge.Config{AuditorAddress: "judge-engine", RiskThreshold: 90},
		v, limiter, budget, dispatcher, trail, stubProofs{healthy: healthy}, nil, nil)

	bus := transport.NewLocalBus()
	return NewServer(Config{Port: "0"}, logger, engine, bus), engine, bus
}

func doRequest(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func submitValidClaim(t *testing.T, engine *judge.Engine) judge.ClaimOutcome {
	t.Helper()
	outcome := engine.HandleClaim(context.Background(), "red-team-alpha", types.ExploitClaim{
		Success:         true,
		ExtractedSecret: "fetch_ai_2024",
		TargetID:        "target-1",
		ExploitDetails: types.ExploitDetails{
			types.DetailExploitType: "sql_injection",
			types.DetailPayload:     "' OR 1=1 --",
			types.DetailTimestamp:   time.Now().UTC().Format(time.RFC3339),
		},
	})
	require.True(t, outcome.Verdict.IsValid, outcome.Verdict.Reason)
	return outcome
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, true)
	rec := doRequest(t, srv, "/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, true)
	rec := doRequest(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	unhealthy, _ := newTestServer(t, false)
	rec = doRequest(t, unhealthy, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatsAndEarningsEndpoints(t *testing.T) {
	srv, engine := newTestServer(t, true)
	submitValidClaim(t, engine)

	rec := doRequest(t, srv, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats types.EngineStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.ExploitsVerified)
	assert.Equal(t, int64(1), stats.BountiesPaid)
	assert.Equal(t, int64(300), stats.TotalBountyAmount)

	rec = doRequest(t, srv, "/earnings/red-team-alpha")
	require.Equal(t, http.StatusOK, rec.Code)

	var earnings types.SubmitterEarnings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &earnings))
	assert.Equal(t, int64(300), earnings.TotalEarned)
}

func TestEventsEndpoint(t *testing.T) {
	srv, engine := newTestServer(t, true)
	submitValidClaim(t, engine)

	rec := doRequest(t, srv, "/events/payout")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []types.AuditEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.True(t, body.Events[0].Success)

	rec = doRequest(t, srv, "/events/bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, "/events/payout?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProofEndpoint(t *testing.T) {
	srv, engine := newTestServer(t, true)
	outcome := submitValidClaim(t, engine)

	rec := doRequest(t, srv, "/proofs/"+outcome.AuditID)
	require.Equal(t, http.StatusOK, rec.Code)

	var record types.ProofRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, types.ProofSubmitted, record.VerificationStatus)

	rec = doRequest(t, srv, "/proofs/"+outcome.AuditID+"?refresh=true")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, types.ProofVerified, record.VerificationStatus)

	rec = doRequest(t, srv, "/proofs/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func doPost(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func drainBus(t *testing.T, engine *judge.Engine, bus *transport.LocalBus) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		transport.Pump(context.Background(), logging.NewNoOpLogger(), bus, engine)
	}()
	return func() {
		require.NoError(t, bus.Close())
		<-done
	}
}

func TestClaimIntakeDrivesEngine(t *testing.T) {
	srv, engine, bus := newTestServerWithBus(t, true)
	wait := drainBus(t, engine, bus)

	rec := doPost(t, srv, "/claims", transport.ClaimSubmission{
		SubmitterID: "red-team-alpha",
		Claim: types.ExploitClaim{
			Success:         true,
			ExtractedSecret: "fetch_ai_2024",
			TargetID:        "target-1",
			ExploitDetails: types.ExploitDetails{
				types.DetailExploitType: "sql_injection",
				types.DetailPayload:     "' OR 1=1 --",
				types.DetailTimestamp:   time.Now().UTC().Format(time.RFC3339),
			},
		},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	wait()

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.ExploitsVerified)
	assert.Equal(t, int64(1), stats.BountiesPaid)
	assert.Equal(t, int64(300), stats.TotalBountyAmount)
}

func TestAttackIntakeDrivesEngine(t *testing.T) {
	srv, engine, bus := newTestServerWithBus(t, true)
	wait := drainBus(t, engine, bus)

	rec := doPost(t, srv, "/attacks", types.AttackObservation{
		SubmitterID: "red-team-alpha",
		TargetID:    "target-1",
		ExploitType: "sql_injection",
		Payload:     "' OR 1=1 --",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	wait()

	assert.Equal(t, int64(1), engine.Stats().AttacksMonitored)
	assert.Len(t, engine.AttackFlow(), 1)
}

func TestClaimIntakeValidation(t *testing.T) {
	srv, _, _ := newTestServerWithBus(t, true)

	rec := doPost(t, srv, "/claims", transport.ClaimSubmission{
		Claim: types.ExploitClaim{Success: true, TargetID: "target-1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doPost(t, srv, "/attacks", types.AttackObservation{SubmitterID: "red-team-alpha"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntakeAfterBusClosed(t *testing.T) {
	srv, _, bus := newTestServerWithBus(t, true)
	require.NoError(t, bus.Close())

	rec := doPost(t, srv, "/claims", transport.ClaimSubmission{SubmitterID: "red-team-alpha"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doPost(t, srv, "/attacks", types.AttackObservation{SubmitterID: "red-team-alpha", TargetID: "target-1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPayoutsEndpoint(t *testing.T) {
	srv, engine := newTestServer(t, true)
	submitValidClaim(t, engine)

	rec := doRequest(t, srv, "/payouts")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Payouts []types.PayoutRecord `json:"payouts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Payouts, 1)
	assert.Equal(t, types.PayoutSuccess, body.Payouts[0].Status)
}
