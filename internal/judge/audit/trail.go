package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

const (
	// Per-category history bound. Older records are discarded without error.
	maxRecordsPerCategory = 1000

	sinkTimeout = 2 * time.Second
)

// Sink receives audit events for external persistence. Delivery is
// best-effort; a failing sink never interrupts the recording path.
type Sink interface {
	Append(ctx context.Context, event types.AuditEvent) error
}

type earnings struct {
	total int64
	count int64
}

// Trail is the engine's append-only compliance record plus the statistics
// derived from it. Every mutating engine step produces exactly one event here.
type Trail struct {
	logger logging.Logger
	sink   Sink
	wg     sync.WaitGroup

	mu       sync.Mutex
	events   map[types.AuditEventType][]types.AuditEvent
	stats    types.EngineStats
	earnings map[string]*earnings
}

// NewTrail creates a trail. sink may be nil, in which case events are kept
// in memory only.
func NewTrail(logger logging.Logger, sink Sink) *Trail {
	return &Trail{
		logger:   logger,
		sink:     sink,
		events:   make(map[types.AuditEventType][]types.AuditEvent),
		earnings: make(map[string]*earnings),
	}
}

// Record appends one event, updates the derived statistics, and ships the
// event to the external sink asynchronously. The in-memory record always
// succeeds; sink failures are logged and counted but never propagate.
func (t *Trail) Record(event types.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()
	ring := append(t.events[event.Type], event)
	if len(ring) > maxRecordsPerCategory {
		ring = ring[len(ring)-maxRecordsPerCategory:]
	}
	t.events[event.Type] = ring

	switch event.Type {
	case types.EventAttack:
		t.stats.AttacksMonitored++
	case types.EventVerification:
		if event.Success {
			t.stats.ExploitsVerified++
		}
	case types.EventPayout:
		if event.Success {
			t.stats.BountiesPaid++
			t.stats.TotalBountyAmount += event.Amount
			e, ok := t.earnings[event.SubmitterID]
			if !ok {
				e = &earnings{}
				t.earnings[event.SubmitterID] = e
			}
			e.total += event.Amount
			e.count++
		}
	}
	t.mu.Unlock()

	// Sink delivery is off the recording path so a slow sink never stalls
	// the event flow.
	if t.sink != nil {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := t.sink.Append(ctx, event); err != nil {
				t.logger.Warnf("Failed to ship %s audit event to sink: %v", event.Type, err)
				t.RecordError()
			}
		}()
	}
}

// Drain blocks until all in-flight sink deliveries complete. Call during
// shutdown, after the last Record.
func (t *Trail) Drain() {
	t.wg.Wait()
}

// RecordError bumps the error counter for failures outside the event flow
// (sink, proof service, registry side effects).
func (t *Trail) RecordError() {
	t.mu.Lock()
	t.stats.Errors++
	t.mu.Unlock()
}

// Stats returns a snapshot of the aggregate counters.
func (t *Trail) Stats() types.EngineStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Earnings summarizes what one submitter has collected so far.
func (t *Trail) Earnings(submitterID string) types.SubmitterEarnings {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := types.SubmitterEarnings{SubmitterID: submitterID}
	e, ok := t.earnings[submitterID]
	if !ok {
		return result
	}
	result.TotalEarned = e.total
	result.BountyCount = e.count
	result.AvgBounty = float64(e.total) / float64(e.count)
	return result
}

// Recent returns up to limit most-recent events of one category, newest last.
func (t *Trail) Recent(eventType types.AuditEventType, limit int) []types.AuditEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring := t.events[eventType]
	if limit <= 0 || limit > len(ring) {
		limit = len(ring)
	}
	out := make([]types.AuditEvent, limit)
	copy(out, ring[len(ring)-limit:])
	return out
}
