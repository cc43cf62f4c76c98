package verifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

// Rules controls which verification checks are applied to a claim.
type Rules struct {
	RequireSecret   bool           `yaml:"require_secret"`
	PreventReplay   bool           `yaml:"prevent_replay"`
	MaxAgeMinutes   int            `yaml:"max_age_minutes"`
	MinSeverity     types.Severity `yaml:"min_severity"`
	MaxSingleBounty int64          `yaml:"max_single_bounty"`
}

// DefaultRules mirrors the engine's shipped verification policy.
func DefaultRules() Rules {
	return Rules{
		RequireSecret:   true,
		PreventReplay:   true,
		MaxAgeMinutes:   5,
		MinSeverity:     types.SeverityLow,
		MaxSingleBounty: 1000,
	}
}

// DefaultRates is the shipped severity-to-bounty table.
func DefaultRates() map[types.Severity]int64 {
	return map[types.Severity]int64{
		types.SeverityLow:      50,
		types.SeverityMedium:   150,
		types.SeverityHigh:     300,
		types.SeverityCritical: 500,
	}
}

// Verifier validates exploit claims against the known target secret and the
// configured rules. The replay seen-set is owned here and guarded by a mutex;
// insertion into it is a deliberate side effect of Verify.
type Verifier struct {
	logger      logging.Logger
	knownSecret string
	rules       Rules
	rates       map[types.Severity]int64
	now         func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}
}

func New(logger logging.Logger, knownSecret string, rules Rules, rates map[types.Severity]int64) *Verifier {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Verifier{
		logger:      logger,
		knownSecret: knownSecret,
		rules:       rules,
		rates:       rates,
		now:         time.Now,
		seen:        make(map[string]struct{}),
	}
}

// SetClock overrides the verifier's clock. Intended for tests.
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// Digest returns the canonical SHA-256 digest of the exploit details.
// JSON encoding of a map sorts keys, so semantically identical detail sets
// hash identically regardless of insertion order.
func Digest(details types.ExploitDetails) string {
	encoded, err := json.Marshal(details)
	if err != nil {
		// A map[string]string cannot fail to marshal; keep the digest total anyway.
		encoded = []byte(fmt.Sprintf("%v", details))
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// ClassifySeverity maps an exploit type to a severity level. Unknown types are
// treated as high rather than low so legitimate findings are not under-paid.
func ClassifySeverity(exploitType string) types.Severity {
	lowered := strings.ToLower(exploitType)
	switch {
	case strings.Contains(lowered, "secret_key"), strings.Contains(lowered, "credential"):
		return types.SeverityCritical
	case strings.Contains(lowered, "sql"), strings.Contains(lowered, "injection"):
		return types.SeverityHigh
	case strings.Contains(lowered, "xss"), strings.Contains(lowered, "csrf"):
		return types.SeverityMedium
	default:
		return types.SeverityHigh
	}
}

// Verify runs the verification rules in fixed order; the first failing rule
// short-circuits. One verdict per claim.
func (v *Verifier) Verify(claim types.ExploitClaim) types.VerificationVerdict {
	if !claim.Success {
		return invalid(types.SeverityLow, "attack was not successful")
	}

	if v.rules.RequireSecret {
		if claim.ExtractedSecret == "" {
			return invalid(types.SeverityLow, "secret not extracted")
		}
		if claim.ExtractedSecret != v.knownSecret {
			return invalid(types.SeverityLow, fmt.Sprintf("secret mismatch: expected %q, got %q", v.knownSecret, claim.ExtractedSecret))
		}
	}

	if v.rules.PreventReplay {
		digest := Digest(claim.ExploitDetails)
		v.mu.Lock()
		_, dup := v.seen[digest]
		if !dup {
			v.seen[digest] = struct{}{}
		}
		v.mu.Unlock()
		if dup {
			return invalid(types.SeverityLow, "duplicate exploit submission (replay detected)")
		}
	}

	if raw, ok := claim.ExploitDetails[types.DetailTimestamp]; ok {
		if claimedAt, err := parseTimestamp(raw); err == nil {
			ageMinutes := v.now().Sub(claimedAt).Minutes()
			if ageMinutes > float64(v.rules.MaxAgeMinutes) {
				return invalid(types.SeverityLow, fmt.Sprintf("attack too old: %.1f minutes (max: %d minutes)", ageMinutes, v.rules.MaxAgeMinutes))
			}
		}
	}

	severity := ClassifySeverity(claim.ExploitDetails[types.DetailExploitType])

	if severity.Rank() < v.rules.MinSeverity.Rank() {
		return invalid(severity, fmt.Sprintf("severity %q below minimum %q", severity, v.rules.MinSeverity))
	}

	bounty := v.rates[severity]
	if bounty > v.rules.MaxSingleBounty {
		v.logger.Warnf("Capping bounty at maximum: %d", v.rules.MaxSingleBounty)
		bounty = v.rules.MaxSingleBounty
	}

	v.logger.Infof("Exploit verified: %s severity, %d tokens", severity, bounty)

	return types.VerificationVerdict{
		IsValid:      true,
		Severity:     severity,
		BountyAmount: bounty,
		Reason:       "Exploit verified successfully",
	}
}

// SeenExploits returns the number of distinct exploit digests recorded.
func (v *Verifier) SeenExploits() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

func invalid(severity types.Severity, reason string) types.VerificationVerdict {
	return types.VerificationVerdict{
		IsValid:      false,
		Severity:     severity,
		BountyAmount: 0,
		Reason:       reason,
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
