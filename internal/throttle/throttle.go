// Package throttle enforces the minimum interval between alerts.
//
// The throttle has two states. IDLE accepts the next qualifying detection and
// moves to COOLDOWN; COOLDOWN returns to IDLE once the interval has elapsed.
// There is a single throttle per process, so the key is global rather than
// per person.
package throttle

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State is the throttle state.
type State int

const (
	Idle State = iota
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Cooldown:
		return "COOLDOWN"
	default:
		return "UNKNOWN"
	}
}

// Decision explains the outcome of Allow.
type Decision int

const (
	// Accepted means an event may be emitted.
	Accepted Decision = iota
	// InCooldown means the minimum interval has not elapsed.
	InCooldown
	// CapReached means the hourly alert cap is exhausted.
	CapReached
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case InCooldown:
		return "cooldown"
	case CapReached:
		return "hourly_cap"
	default:
		return "unknown"
	}
}

// Throttle is safe for concurrent use; the loop is its only writer but the
// status server reads it.
type Throttle struct {
	mu       sync.Mutex
	clock    clock.Clock
	interval time.Duration
	perHour  int

	last    time.Time
	fired   bool
	history []time.Time
}

// New creates a throttle. perHour <= 0 disables the hourly cap. A nil clock
// uses the wall clock.
func New(interval time.Duration, perHour int, clk clock.Clock) *Throttle {
	if clk == nil {
		clk = clock.New()
	}
	return &Throttle{
		clock:    clk,
		interval: interval,
		perHour:  perHour,
	}
}

// Allow reports whether a qualifying detection may become an event now. When
// it returns Accepted the throttle enters COOLDOWN.
func (t *Throttle) Allow() Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.stateAt(now) == Cooldown {
		return InCooldown
	}

	if t.perHour > 0 {
		t.pruneLocked(now)
		if len(t.history) >= t.perHour {
			return CapReached
		}
		t.history = append(t.history, now)
	}

	t.last = now
	t.fired = true
	return Accepted
}

// State returns the current state.
func (t *Throttle) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateAt(t.clock.Now())
}

// Remaining returns how long the cooldown lasts, zero when IDLE.
func (t *Throttle) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.fired {
		return 0
	}
	left := t.interval - t.clock.Since(t.last)
	if left < 0 {
		return 0
	}
	return left
}

// Last returns the time of the last accepted event and whether there was one.
func (t *Throttle) Last() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.fired
}

// Interval returns the configured minimum interval.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

func (t *Throttle) stateAt(now time.Time) State {
	if t.fired && now.Sub(t.last) < t.interval {
		return Cooldown
	}
	return Idle
}

func (t *Throttle) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(t.history) && !t.history[i].After(cutoff) {
		i++
	}
	t.history = t.history[i:]
}
