package judge

import (
	"context"

	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

// ScoreReport is a risk assessment for one verified exploit.
type ScoreReport struct {
	RiskScore int            `json:"risk_score"`
	Severity  types.Severity `json:"severity"`
	Summary   string         `json:"summary,omitempty"`
}

// ScoreOracle assesses the risk of a verified exploit before proof
// submission. Implementations may call out to an external analyst; the
// engine only needs the score.
type ScoreOracle interface {
	Score(ctx context.Context, exploitType, payload string) (ScoreReport, error)
}

// StaticOracle is the shipped oracle: every verified exploit in the
// simulation is treated as a near-certain critical finding.
type StaticOracle struct{}

func (StaticOracle) Score(ctx context.Context, exploitType, payload string) (ScoreReport, error) {
	return ScoreReport{
		RiskScore: 98,
		Severity:  types.SeverityCritical,
		Summary:   "prompt injection leading to secret disclosure",
	}, nil
}
