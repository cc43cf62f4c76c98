package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xguardapp/0xguard-engine/pkg/logging"
)

// fakeClock advances only when told to, so no test waits on wall-clock time.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(clock *fakeClock) *Limiter {
	l := NewLimiter(logging.NewNoOpLogger(), DefaultConfig())
	l.SetClock(clock.Now)
	return l
}

func TestHourlyWindowBoundary(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	// Exactly 10 payouts succeed within one hour.
	for i := 0; i < DefaultMaxPerHour; i++ {
		clock.Advance(3 * time.Minute) // clears the cooldown between payouts
		allowed, reason := l.Check("red-team-1")
		require.True(t, allowed, "payout %d should be allowed: %s", i+1, reason)
		l.Commit("red-team-1")
	}

	// The 11th within the same window is rejected.
	clock.Advance(3 * time.Minute)
	allowed, reason := l.Check("red-team-1")
	assert.False(t, allowed)
	assert.Contains(t, reason, "rate limit exceeded")
	assert.Contains(t, reason, "10/10")

	// After the window rolls over, payouts resume.
	clock.Advance(time.Hour)
	allowed, _ = l.Check("red-team-1")
	assert.True(t, allowed)
	assert.Equal(t, 10, l.Count("red-team-1"))
	l.Commit("red-team-1")
}

func TestCooldownBoundary(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	allowed, _ := l.Check("red-team-1")
	require.True(t, allowed)
	l.Commit("red-team-1")

	// One second before the cooldown elapses: rejected with remaining seconds.
	clock.Advance(DefaultCooldownSeconds*time.Second - time.Second)
	allowed, reason := l.Check("red-team-1")
	assert.False(t, allowed)
	assert.Contains(t, reason, "cooldown active")
	assert.Contains(t, reason, "1 seconds remaining")

	// Exactly at the cooldown: allowed.
	clock.Advance(time.Second)
	allowed, _ = l.Check("red-team-1")
	assert.True(t, allowed)
}

func TestCheckDoesNotMutate(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 100; i++ {
		allowed, _ := l.Check("red-team-1")
		require.True(t, allowed)
	}
	assert.Equal(t, 0, l.Count("red-team-1"))
}

func TestSubmittersAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	l.Commit("red-team-1")

	// A fresh submitter is not affected by red-team-1's cooldown.
	allowed, _ := l.Check("red-team-2")
	assert.True(t, allowed)

	allowed, reason := l.Check("red-team-1")
	assert.False(t, allowed)
	assert.Contains(t, reason, "cooldown")
}

func TestWindowResetClearsCount(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	l.Commit("red-team-1")
	l.Commit("red-team-1")
	assert.Equal(t, 2, l.Count("red-team-1"))

	clock.Advance(time.Hour)
	allowed, _ := l.Check("red-team-1")
	assert.True(t, allowed)
	assert.Equal(t, 0, l.Count("red-team-1"))
}
