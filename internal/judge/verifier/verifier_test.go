package verifier

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

const knownSecret = "fetch_ai_2024"

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	return New(logging.NewNoOpLogger(), knownSecret, DefaultRules(), DefaultRates())
}

func validClaim(exploitType string) types.ExploitClaim {
	return types.ExploitClaim{
		Success:         true,
		ExtractedSecret: knownSecret,
		TargetID:        "T1",
		ExploitDetails: types.ExploitDetails{
			types.DetailExploitType: exploitType,
			types.DetailPayload:     "' OR 1=1",
			types.DetailTimestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		},
		ClaimedAt: time.Now(),
	}
}

func TestVerifyRuleOrder(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*types.ExploitClaim)
		wantValid  bool
		wantReason string
	}{
		{
			name:       "unsuccessful attack",
			mutate:     func(c *types.ExploitClaim) { c.Success = false },
			wantReason: "attack was not successful",
		},
		{
			name:       "secret missing",
			mutate:     func(c *types.ExploitClaim) { c.ExtractedSecret = "" },
			wantReason: "secret not extracted",
		},
		{
			name:       "secret mismatch",
			mutate:     func(c *types.ExploitClaim) { c.ExtractedSecret = "wrong_secret" },
			wantReason: "secret mismatch",
		},
		{
			name:      "all rules pass",
			mutate:    func(c *types.ExploitClaim) {},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t)
			claim := validClaim("sql_injection")
			tt.mutate(&claim)

			verdict := v.Verify(claim)
			assert.Equal(t, tt.wantValid, verdict.IsValid)
			if !tt.wantValid {
				assert.Contains(t, verdict.Reason, tt.wantReason)
				assert.Zero(t, verdict.BountyAmount)
			}
		})
	}
}

func TestVerifyReplayRejection(t *testing.T) {
	v := newTestVerifier(t)
	claim := validClaim("sql_injection")

	first := v.Verify(claim)
	require.True(t, first.IsValid)

	second := v.Verify(claim)
	assert.False(t, second.IsValid)
	assert.Contains(t, second.Reason, "duplicate")
	assert.Equal(t, 1, v.SeenExploits())
}

func TestVerifyReplayDigestIgnoresKeyOrder(t *testing.T) {
	// Maps have no field order; the canonical digest must be stable anyway.
	a := types.ExploitDetails{"exploit_type": "sql", "payload": "x", "timestamp": "t"}
	b := types.ExploitDetails{"timestamp": "t", "exploit_type": "sql", "payload": "x"}
	assert.Equal(t, Digest(a), Digest(b))

	c := types.ExploitDetails{"exploit_type": "sql", "payload": "y", "timestamp": "t"}
	assert.NotEqual(t, Digest(a), Digest(c))
}

func TestVerifyStaleClaim(t *testing.T) {
	v := newTestVerifier(t)

	claim := validClaim("sql_injection")
	claim.ExploitDetails[types.DetailTimestamp] = time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339Nano)

	verdict := v.Verify(claim)
	assert.False(t, verdict.IsValid)
	assert.Contains(t, verdict.Reason, "attack too old")
	assert.Contains(t, verdict.Reason, "10.0 minutes")
}

func TestVerifyUnparseableTimestampIgnored(t *testing.T) {
	v := newTestVerifier(t)

	claim := validClaim("sql_injection")
	claim.ExploitDetails[types.DetailTimestamp] = "not-a-timestamp"

	verdict := v.Verify(claim)
	assert.True(t, verdict.IsValid)
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		exploitType string
		want        types.Severity
	}{
		{"secret_key_extraction", types.SeverityCritical},
		{"credential_theft", types.SeverityCritical},
		{"sql_injection", types.SeverityHigh},
		{"command_injection", types.SeverityHigh},
		{"stored_xss", types.SeverityMedium},
		{"csrf_token_bypass", types.SeverityMedium},
		{"buffer_overflow", types.SeverityHigh},
		{"", types.SeverityHigh},
		{"SQL_INJECTION", types.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.exploitType), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySeverity(tt.exploitType))
		})
	}
}

func TestVerifyBountyMonotonicBySeverity(t *testing.T) {
	v := newTestVerifier(t)

	critical := v.Verify(validClaim("secret_key_extraction"))
	require.True(t, critical.IsValid)
	assert.Equal(t, types.SeverityCritical, critical.Severity)
	assert.EqualValues(t, 500, critical.BountyAmount)

	medium := v.Verify(validClaim("xss"))
	require.True(t, medium.IsValid)
	assert.Equal(t, types.SeverityMedium, medium.Severity)
	assert.EqualValues(t, 150, medium.BountyAmount)

	assert.GreaterOrEqual(t, critical.BountyAmount, medium.BountyAmount)
}

func TestVerifyMinSeverityFloor(t *testing.T) {
	rules := DefaultRules()
	rules.MinSeverity = types.SeverityHigh
	v := New(logging.NewNoOpLogger(), knownSecret, rules, DefaultRates())

	verdict := v.Verify(validClaim("xss"))
	assert.False(t, verdict.IsValid)
	assert.Equal(t, types.SeverityMedium, verdict.Severity)
	assert.Contains(t, verdict.Reason, "below minimum")
}

func TestVerifyMaxSingleBountyCap(t *testing.T) {
	rates := DefaultRates()
	rates[types.SeverityCritical] = 5000
	v := New(logging.NewNoOpLogger(), knownSecret, DefaultRules(), rates)

	verdict := v.Verify(validClaim("secret_key_extraction"))
	require.True(t, verdict.IsValid)
	assert.EqualValues(t, 1000, verdict.BountyAmount)
}

func TestVerifySecretNotRequired(t *testing.T) {
	rules := DefaultRules()
	rules.RequireSecret = false
	v := New(logging.NewNoOpLogger(), knownSecret, rules, DefaultRates())

	claim := validClaim("sql_injection")
	claim.ExtractedSecret = ""

	verdict := v.Verify(claim)
	assert.True(t, verdict.IsValid)
}
