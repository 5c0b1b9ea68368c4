package breaker

import (
	"sync"
	"time"
)

// State is the breaker position.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

const (
	DefaultFailureThreshold = 5
	DefaultPenalty          = 30 * time.Second
)

// Breaker is a three-state circuit breaker guarding worker launches.
// CLOSED admits everything; OPEN rejects until the penalty window has
// elapsed; HALF_OPEN admits exactly one probe. openedAt is set iff the
// state is not CLOSED.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	threshold int
	penalty   time.Duration
	probing   bool // a HALF_OPEN probe has been handed out

	now func() time.Time // injectable clock for tests
}

// New creates a CLOSED breaker. Non-positive arguments select defaults.
func New(threshold int, penalty time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if penalty <= 0 {
		penalty = DefaultPenalty
	}
	return &Breaker{
		state:     Closed,
		threshold: threshold,
		penalty:   penalty,
		now:       time.Now,
	}
}

// RecordFailure counts one failure and trips the breaker once the
// threshold is reached. A failure during HALF_OPEN re-opens immediately
// because the counter is already at or above the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold && b.state != Open {
		b.state = Open
		b.openedAt = b.now()
		b.probing = false
	}
}

// RecordSuccess closes the breaker from HALF_OPEN and clears the
// failure counter. A success while CLOSED just resets the counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == HalfOpen || b.state == Open {
		b.state = Closed
		b.openedAt = time.Time{}
		b.probing = false
	}
}

// CheckAndUpdate reports whether a launch attempt is allowed, applying
// the OPEN -> HALF_OPEN transition as a side effect once the penalty
// window has elapsed. HALF_OPEN admits exactly one probe.
func (b *Breaker) CheckAndUpdate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) >= b.penalty {
			b.state = HalfOpen
			b.probing = true
			return true
		}
		return false
	case HalfOpen:
		if b.probing {
			return false // a probe is already in flight
		}
		b.probing = true
		return true
	}
	return false
}

// ReleaseProbe hands back an unused HALF_OPEN probe. Callers that were
// admitted but failed before a process ever ran must release the probe;
// otherwise HALF_OPEN keeps a phantom probe in flight and denies every
// later attempt until an outcome is recorded or an operator resets.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	if b.state == HalfOpen {
		b.probing = false
	}
	b.mu.Unlock()
}

// Reset forces CLOSED regardless of history. Operator override.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.openedAt = time.Time{}
	b.probing = false
}

// Snapshot is a point-in-time view safe to serialize.
type Snapshot struct {
	State            State         `json:"state"`
	Failures         int           `json:"failures"`
	OpenedAt         time.Time     `json:"opened_at,omitempty"`
	RemainingPenalty time.Duration `json:"remaining_penalty,omitempty"`
}

// Status returns the current breaker snapshot. RemainingPenalty is only
// set while OPEN.
func (b *Breaker) Status() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{State: b.state, Failures: b.failures, OpenedAt: b.openedAt}
	if b.state == Open {
		if rem := b.penalty - b.now().Sub(b.openedAt); rem > 0 {
			s.RemainingPenalty = rem
		}
	}
	return s
}

// SetClock replaces the breaker's time source. Test hook.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}
