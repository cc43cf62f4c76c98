package transport

import (
	"errors"
	"sync"

	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

const defaultBusCapacity = 64

// ErrBusClosed is returned when publishing to a closed bus.
var ErrBusClosed = errors.New("transport bus closed")

// LocalBus is an in-process Adapter backed by buffered channels. It is the
// transport used when the red team, target and judge run in one process.
type LocalBus struct {
	attacks chan types.AttackObservation
	claims  chan ClaimSubmission

	mu     sync.Mutex
	closed bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		attacks: make(chan types.AttackObservation, defaultBusCapacity),
		claims:  make(chan ClaimSubmission, defaultBusCapacity),
	}
}

// PublishAttack delivers one attack observation. Blocks when the buffer is
// full; Close waits for in-flight publishes.
func (b *LocalBus) PublishAttack(obs types.AttackObservation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.attacks <- obs
	return nil
}

// PublishClaim delivers one exploit claim.
func (b *LocalBus) PublishClaim(submission ClaimSubmission) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.claims <- submission
	return nil
}

func (b *LocalBus) Attacks() <-chan types.AttackObservation {
	return b.attacks
}

func (b *LocalBus) Claims() <-chan ClaimSubmission {
	return b.claims
}

// Close closes both channels. Idempotent.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.attacks)
	close(b.claims)
	return nil
}
