package payout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/0xguardapp/0xguard-engine/internal/judge/ratelimit"
	"github.com/0xguardapp/0xguard-engine/internal/judge/verifier"
	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

const (
	maxAttempts       = 3
	attemptDelay      = time.Second
	maxHistoryRecords = 1000

	// Tx references matching this placeholder are treated as failed attempts.
	placeholderTxRef = "0x0000..."
)

// PaymentClient submits a gasless bounty transaction and returns its
// transaction reference.
type PaymentClient interface {
	SaveBountyToken(ctx context.Context, recipient, exploitString string) (string, error)
}

// Dispatcher executes bounty payouts: it gates on the daily budget and the
// per-submitter rate limits, then submits to the external payment service
// with a fixed bounded retry. Rate-limit and budget state are only committed
// after a confirmed transaction.
type Dispatcher struct {
	logger   logging.Logger
	limiter  *ratelimit.Limiter
	budget   *Budget
	payments PaymentClient
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu      sync.Mutex
	history []types.PayoutRecord

	// Serializes the rate-limit check through commit per submitter, so two
	// concurrent dispatches cannot both pass the cooldown or hourly check.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewDispatcher(logger logging.Logger, limiter *ratelimit.Limiter, budget *Budget, payments PaymentClient) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		limiter:  limiter,
		budget:   budget,
		payments: payments,
		sleep:    sleepContext,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetSleeper overrides the inter-attempt delay. Intended for tests.
func (d *Dispatcher) SetSleeper(sleep func(ctx context.Context, delay time.Duration) error) {
	d.sleep = sleep
}

// Dispatch pays a bounty to the submitter. The returned result is structured;
// rejections and exhausted retries never surface as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, submitterID string, amount int64, exploit types.ExploitDetails) types.PayoutResult {
	d.logger.Infof("Triggering bounty: %d tokens to %s", amount, shortID(submitterID))

	lock := d.submitterLock(submitterID)
	lock.Lock()
	defer lock.Unlock()

	granted, err := d.budget.Reserve(amount)
	if err != nil {
		d.recordFailure(submitterID, 0, exploit)
		return types.PayoutResult{Success: false, Reason: err.Error()}
	}

	allowed, reason := d.limiter.Check(submitterID)
	if !allowed {
		d.budget.Refund(granted)
		d.logger.Warnf("Rate limit check failed: %s", reason)
		d.recordFailure(submitterID, 0, exploit)
		return types.PayoutResult{Success: false, Reason: reason}
	}

	exploitString := exploit[types.DetailPayload]
	if exploitString == "" {
		exploitString = exploit["exploit_string"]
	}

	txRef, err := d.submitWithRetry(ctx, submitterID, exploitString)
	if err != nil {
		d.budget.Refund(granted)
		d.logger.Errorf("Failed to trigger bounty after retries: %v", err)
		d.recordFailure(submitterID, 0, exploit)
		return types.PayoutResult{Success: false, Reason: err.Error()}
	}

	d.limiter.Commit(submitterID)
	d.appendRecord(types.PayoutRecord{
		SubmitterID:   submitterID,
		Amount:        granted,
		TxReference:   txRef,
		Status:        types.PayoutSuccess,
		CreatedAt:     d.now(),
		ExploitDigest: verifier.Digest(exploit),
	})

	d.logger.Infof("Bounty paid: %d tokens, TX: %s", granted, txRef)

	return types.PayoutResult{
		Success:     true,
		TxReference: txRef,
		PaidAmount:  granted,
	}
}

// submitWithRetry calls the payment service up to maxAttempts times with a
// fixed delay between attempts. A context cancellation aborts immediately so
// no state is committed for an abandoned dispatch.
func (d *Dispatcher) submitWithRetry(ctx context.Context, recipient, exploitString string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		txRef, err := d.payments.SaveBountyToken(ctx, recipient, exploitString)
		if err == nil && txRef != "" && txRef != placeholderTxRef {
			return txRef, nil
		}
		if err != nil {
			lastErr = err
			d.logger.Errorf("Bounty transaction attempt %d failed: %v", attempt, err)
		} else {
			lastErr = fmt.Errorf("payment service returned placeholder transaction reference")
			d.logger.Warnf("Bounty transaction attempt %d returned placeholder reference", attempt)
		}

		if attempt < maxAttempts {
			if err := d.sleep(ctx, attemptDelay); err != nil {
				return "", err
			}
		}
	}

	return "", fmt.Errorf("payout failed after %d attempts: %w", maxAttempts, lastErr)
}

// History returns a copy of the recent payout records, newest last.
func (d *Dispatcher) History() []types.PayoutRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]types.PayoutRecord, len(d.history))
	copy(out, d.history)
	return out
}

func (d *Dispatcher) submitterLock(submitterID string) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()

	lock, ok := d.locks[submitterID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[submitterID] = lock
	}
	return lock
}

func (d *Dispatcher) recordFailure(submitterID string, amount int64, exploit types.ExploitDetails) {
	d.appendRecord(types.PayoutRecord{
		SubmitterID:   submitterID,
		Amount:        amount,
		Status:        types.PayoutFailed,
		CreatedAt:     d.now(),
		ExploitDigest: verifier.Digest(exploit),
	})
}

func (d *Dispatcher) appendRecord(record types.PayoutRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, record)
	if len(d.history) > maxHistoryRecords {
		d.history = d.history[len(d.history)-maxHistoryRecords:]
	}
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shortID(id string) string {
	if len(id) <= 20 {
		return id
	}
	return id[:20] + "..."
}
