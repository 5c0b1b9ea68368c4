package breaker

import (
	"testing"
	"time"
)

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b := New(5, 30*time.Second)
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if st := b.Status(); st.State != Closed {
		t.Fatalf("expected CLOSED after 4 failures, got %s", st.State)
	}
	if !b.CheckAndUpdate() {
		t.Fatalf("closed breaker must admit launches")
	}
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := New(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	st := b.Status()
	if st.State != Open {
		t.Fatalf("expected OPEN after 5 failures, got %s", st.State)
	}
	if st.Failures != 5 {
		t.Fatalf("expected 5 failures recorded, got %d", st.Failures)
	}
	if b.CheckAndUpdate() {
		t.Fatalf("open breaker must reject launches")
	}
}

func TestBreakerHalfOpenAfterPenalty(t *testing.T) {
	now := time.Now()
	b := New(2, 30*time.Second)
	b.SetClock(func() time.Time { return now })
	b.RecordFailure()
	b.RecordFailure()

	// penalty not yet elapsed
	now = now.Add(29 * time.Second)
	if b.CheckAndUpdate() {
		t.Fatalf("breaker must stay OPEN inside the penalty window")
	}

	now = now.Add(2 * time.Second)
	if !b.CheckAndUpdate() {
		t.Fatalf("breaker must hand out a probe once the penalty elapsed")
	}
	if st := b.Status(); st.State != HalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", st.State)
	}
	// only one probe at a time
	if b.CheckAndUpdate() {
		t.Fatalf("HALF_OPEN must admit exactly one probe")
	}
}

func TestBreakerClosesOnProbeSuccess(t *testing.T) {
	now := time.Now()
	b := New(2, time.Second)
	b.SetClock(func() time.Time { return now })
	b.RecordFailure()
	b.RecordFailure()
	now = now.Add(2 * time.Second)
	if !b.CheckAndUpdate() {
		t.Fatalf("expected probe admission")
	}
	b.RecordSuccess()
	st := b.Status()
	if st.State != Closed || st.Failures != 0 {
		t.Fatalf("expected CLOSED with zero failures, got %s/%d", st.State, st.Failures)
	}
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	now := time.Now()
	b := New(2, time.Second)
	b.SetClock(func() time.Time { return now })
	b.RecordFailure()
	b.RecordFailure()
	now = now.Add(2 * time.Second)
	if !b.CheckAndUpdate() {
		t.Fatalf("expected probe admission")
	}
	b.RecordFailure()
	if st := b.Status(); st.State != Open {
		t.Fatalf("expected OPEN after failed probe, got %s", st.State)
	}
	if b.CheckAndUpdate() {
		t.Fatalf("reopened breaker must reject until a fresh penalty elapses")
	}
}

func TestBreakerReleaseProbe(t *testing.T) {
	now := time.Now()
	b := New(1, time.Second)
	b.SetClock(func() time.Time { return now })
	b.RecordFailure()
	now = now.Add(2 * time.Second)
	if !b.CheckAndUpdate() {
		t.Fatalf("expected probe admission")
	}
	if b.CheckAndUpdate() {
		t.Fatalf("second probe must be denied while one is in flight")
	}

	// the admitted launch died before a process ever ran: hand the
	// probe back instead of recording an outcome
	b.ReleaseProbe()
	if st := b.Status(); st.State != HalfOpen {
		t.Fatalf("release must not change state, got %s", st.State)
	}
	if !b.CheckAndUpdate() {
		t.Fatalf("released probe must be available again")
	}
}

func TestBreakerReleaseProbeNoopOutsideHalfOpen(t *testing.T) {
	b := New(1, time.Hour)
	b.ReleaseProbe()
	if !b.CheckAndUpdate() {
		t.Fatalf("closed breaker must still admit launches")
	}
	b.RecordFailure()
	b.ReleaseProbe()
	if st := b.Status(); st.State != Open {
		t.Fatalf("release must not reopen a tripped breaker, got %s", st.State)
	}
	if b.CheckAndUpdate() {
		t.Fatalf("open breaker must keep rejecting inside the penalty window")
	}
}

func TestBreakerReset(t *testing.T) {
	b := New(1, time.Hour)
	b.RecordFailure()
	if st := b.Status(); st.State != Open {
		t.Fatalf("expected OPEN, got %s", st.State)
	}
	b.Reset()
	st := b.Status()
	if st.State != Closed || st.Failures != 0 || !st.OpenedAt.IsZero() {
		t.Fatalf("reset must restore a pristine CLOSED breaker, got %+v", st)
	}
	// reset is idempotent
	b.Reset()
	if st := b.Status(); st.State != Closed {
		t.Fatalf("second reset changed state to %s", st.State)
	}
}

func TestBreakerRemainingPenalty(t *testing.T) {
	now := time.Now()
	b := New(1, 30*time.Second)
	b.SetClock(func() time.Time { return now })
	b.RecordFailure()
	now = now.Add(10 * time.Second)
	st := b.Status()
	if st.RemainingPenalty != 20*time.Second {
		t.Fatalf("expected 20s remaining, got %s", st.RemainingPenalty)
	}
}

func TestBreakerDefaults(t *testing.T) {
	b := New(0, 0)
	if b.threshold != DefaultFailureThreshold || b.penalty != DefaultPenalty {
		t.Fatalf("expected defaults %d/%s, got %d/%s",
			DefaultFailureThreshold, DefaultPenalty, b.threshold, b.penalty)
	}
}
