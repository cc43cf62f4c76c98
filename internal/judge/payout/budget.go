package payout

import (
	"errors"
	"sync"
	"time"

	"github.com/0xguardapp/0xguard-engine/pkg/logging"
)

const DefaultDailyCap = 10000

// ErrBudgetExhausted is returned when the daily payout ceiling has been reached.
var ErrBudgetExhausted = errors.New("daily bounty cap exhausted")

// Budget enforces the aggregate daily payout ceiling. Reservations are taken
// inside one critical section so the cap holds under concurrent dispatches;
// a failed payout refunds its reservation.
type Budget struct {
	logger logging.Logger
	cap    int64
	now    func() time.Time

	mu        sync.Mutex
	date      string
	totalPaid int64
}

func NewBudget(logger logging.Logger, dailyCap int64) *Budget {
	if dailyCap <= 0 {
		dailyCap = DefaultDailyCap
	}
	b := &Budget{
		logger: logger,
		cap:    dailyCap,
		now:    time.Now,
	}
	b.date = b.now().Format("2006-01-02")
	return b
}

// SetClock overrides the budget's clock. Intended for tests.
func (b *Budget) SetClock(now func() time.Time) {
	b.now = now
}

// Reserve claims up to amount from today's remaining budget. When the full
// amount no longer fits, the grant shrinks to what is left; when nothing is
// left, ErrBudgetExhausted is returned. The grant is counted immediately so
// concurrent reservations can never overshoot the cap.
func (b *Budget) Reserve(amount int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()

	remaining := b.cap - b.totalPaid
	if remaining <= 0 {
		b.logger.Errorf("Daily cap reached: %d tokens", b.cap)
		return 0, ErrBudgetExhausted
	}

	granted := amount
	if granted > remaining {
		granted = remaining
		b.logger.Warnf("Reducing bounty to fit daily cap: %d tokens", granted)
	}

	b.totalPaid += granted
	return granted, nil
}

// Refund returns a reservation after a failed payout.
func (b *Budget) Refund(amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	b.totalPaid -= amount
	if b.totalPaid < 0 {
		b.totalPaid = 0
	}
}

// TotalPaid returns today's aggregate successful payout amount.
func (b *Budget) TotalPaid() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	return b.totalPaid
}

// Remaining returns the budget left for today.
func (b *Budget) Remaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	return b.cap - b.totalPaid
}

// Exhausted reports whether the daily cap has been consumed.
func (b *Budget) Exhausted() bool {
	return b.Remaining() <= 0
}

// rollLocked resets the counter when the wall-clock date advances.
func (b *Budget) rollLocked() {
	today := b.now().Format("2006-01-02")
	if today != b.date {
		b.date = today
		b.totalPaid = 0
		b.logger.Info("Daily bounty tracking reset")
	}
}
