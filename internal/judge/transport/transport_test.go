package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xguardapp/0xguard-engine/internal/judge"
	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

type recordingSink struct {
	mu      sync.Mutex
	attacks []types.AttackObservation
	claims  []ClaimSubmission
}

func (r *recordingSink) ObserveAttack(obs types.AttackObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attacks = append(r.attacks, obs)
}

func (r *recordingSink) HandleClaim(ctx context.Context, submitterID string, claim types.ExploitClaim) judge.ClaimOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims = append(r.claims, ClaimSubmission{SubmitterID: submitterID, Claim: claim})
	return judge.ClaimOutcome{Verdict: types.VerificationVerdict{IsValid: true}}
}

func (r *recordingSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attacks), len(r.claims)
}

func TestPumpDeliversMessages(t *testing.T) {
	bus := NewLocalBus()
	sink := &recordingSink{}

	require.NoError(t, bus.PublishAttack(types.AttackObservation{SubmitterID: "alpha", TargetID: "target-1"}))
	require.NoError(t, bus.PublishClaim(ClaimSubmission{
		SubmitterID: "alpha",
		Claim:       types.ExploitClaim{Success: true, TargetID: "target-1"},
	}))
	require.NoError(t, bus.Close())

	// Closed channels drain and the pump returns on its own.
	Pump(context.Background(), logging.NewNoOpLogger(), bus, sink)

	attacks, claims := sink.counts()
	assert.Equal(t, 1, attacks)
	assert.Equal(t, 1, claims)
	assert.Equal(t, "alpha", sink.attacks[0].SubmitterID)
}

func TestPumpStopsOnContextCancel(t *testing.T) {
	bus := NewLocalBus()
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Pump(ctx, logging.NewNoOpLogger(), bus, sink)
		close(done)
	}()

	require.NoError(t, bus.PublishAttack(types.AttackObservation{SubmitterID: "alpha"}))
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after cancellation")
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewLocalBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.PublishAttack(types.AttackObservation{}), ErrBusClosed)
	assert.ErrorIs(t, bus.PublishClaim(ClaimSubmission{}), ErrBusClosed)
}
