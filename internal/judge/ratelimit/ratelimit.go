package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/0xguardapp/0xguard-engine/pkg/logging"
)

const (
	DefaultMaxPerHour      = 10
	DefaultCooldownSeconds = 120

	windowDuration = time.Hour
)

// Config bounds the payout frequency per submitter.
type Config struct {
	MaxPerHour int           `yaml:"max_per_hour"`
	Cooldown   time.Duration `yaml:"cooldown"`
}

func DefaultConfig() Config {
	return Config{
		MaxPerHour: DefaultMaxPerHour,
		Cooldown:   DefaultCooldownSeconds * time.Second,
	}
}

// state tracks one submitter. Created lazily on first check, kept for the
// process lifetime.
type state struct {
	windowStart    time.Time
	countInWindow  int
	lastSubmission time.Time
}

// Limiter enforces the hourly sliding window and inter-payout cooldown.
// All per-submitter state is mutated under a single mutex so concurrent
// Check+Commit pairs for the same submitter cannot interleave.
type Limiter struct {
	logger logging.Logger
	config Config
	now    func() time.Time

	mu     sync.Mutex
	states map[string]*state
}

func NewLimiter(logger logging.Logger, config Config) *Limiter {
	if config.MaxPerHour <= 0 {
		config.MaxPerHour = DefaultMaxPerHour
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldownSeconds * time.Second
	}
	return &Limiter{
		logger: logger,
		config: config,
		now:    time.Now,
		states: make(map[string]*state),
	}
}

// SetClock overrides the limiter's clock. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Check reports whether the submitter may receive another payout. It never
// mutates the counters; call Commit exactly once after a confirmed payout.
func (l *Limiter) Check(submitterID string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := l.stateLocked(submitterID, now)

	if now.Sub(st.windowStart) >= windowDuration {
		st.countInWindow = 0
		st.windowStart = now
	}

	if st.countInWindow >= l.config.MaxPerHour {
		return false, fmt.Sprintf("rate limit exceeded: %d/%d bounties per hour", st.countInWindow, l.config.MaxPerHour)
	}

	if !st.lastSubmission.IsZero() {
		sinceLast := now.Sub(st.lastSubmission)
		if sinceLast < l.config.Cooldown {
			remaining := int((l.config.Cooldown - sinceLast).Seconds())
			return false, fmt.Sprintf("cooldown active: %d seconds remaining", remaining)
		}
	}

	return true, "OK"
}

// Commit records a successful payout for the submitter.
func (l *Limiter) Commit(submitterID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := l.stateLocked(submitterID, now)
	st.countInWindow++
	st.lastSubmission = now
}

// Count returns the submitter's payout count in the current window.
func (l *Limiter) Count(submitterID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[submitterID]
	if !ok {
		return 0
	}
	return st.countInWindow
}

func (l *Limiter) stateLocked(submitterID string, now time.Time) *state {
	st, ok := l.states[submitterID]
	if !ok {
		st = &state{windowStart: now}
		l.states[submitterID] = st
	}
	return st
}
