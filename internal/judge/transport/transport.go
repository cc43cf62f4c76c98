package transport

import (
	"context"

	"github.com/0xguardapp/0xguard-engine/internal/judge"
	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

// ClaimSubmission pairs an exploit claim with the submitter it came from.
type ClaimSubmission struct {
	SubmitterID string            `json:"submitter_id"`
	Claim       types.ExploitClaim `json:"claim"`
}

// Adapter delivers typed messages from the simulation harness to the judge.
// Implementations own their channels and close them on Close.
type Adapter interface {
	Attacks() <-chan types.AttackObservation
	Claims() <-chan ClaimSubmission
	Close() error
}

// Sink is the engine surface the pump drives.
type Sink interface {
	ObserveAttack(obs types.AttackObservation)
	HandleClaim(ctx context.Context, submitterID string, claim types.ExploitClaim) judge.ClaimOutcome
}

// Pump drains the adapter into the engine until the context is cancelled or
// both channels close.
func Pump(ctx context.Context, logger logging.Logger, adapter Adapter, sink Sink) {
	attacks := adapter.Attacks()
	claims := adapter.Claims()

	for attacks != nil || claims != nil {
		select {
		case <-ctx.Done():
			logger.Infof("Transport pump stopping: %v", ctx.Err())
			return

		case obs, ok := <-attacks:
			if !ok {
				attacks = nil
				continue
			}
			sink.ObserveAttack(obs)

		case submission, ok := <-claims:
			if !ok {
				claims = nil
				continue
			}
			outcome := sink.HandleClaim(ctx, submission.SubmitterID, submission.Claim)
			if !outcome.Verdict.IsValid {
				logger.Debugf("Claim from %s rejected: %s", submission.SubmitterID, outcome.Verdict.Reason)
			}
		}
	}
	logger.Infof("Transport pump drained")
}
