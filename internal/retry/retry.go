package retry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/scoutd/scoutd/internal/launcher"
	"github.com/scoutd/scoutd/internal/monitor"
)

const (
	// MaxBackoff caps the exponential delay so worst-case recovery
	// latency stays bounded.
	MaxBackoff = 300 * time.Second

	DefaultMaxAttempts     = 3
	DefaultBackoffBase     = 10 * time.Second
	DefaultRateWindow      = 60 * time.Second
	DefaultReductionFactor = 0.7

	// maxTimestamps bounds the sliding-window sample list.
	maxTimestamps = 256
)

// Controller tracks error counts and rates over a sliding window and
// decides whether, when, and with what parameters to retry a failed run.
// All state is guarded by mu; ScheduleRetry's backoff sleep runs on its
// own goroutine so callers never block.
type Controller struct {
	mu                  sync.Mutex
	counts              map[monitor.Category]int64
	timestamps          []time.Time
	retryCount          int
	consecutiveFailures int
	lastFailure         time.Time

	maxAttempts int
	base        time.Duration
	window      time.Duration
	reduction   float64

	now func() time.Time
}

// New creates a controller. Non-positive arguments select defaults.
func New(maxAttempts int, base, window time.Duration, reduction float64) *Controller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	if reduction <= 0 || reduction >= 1 {
		reduction = DefaultReductionFactor
	}
	return &Controller{
		counts:      make(map[monitor.Category]int64),
		maxAttempts: maxAttempts,
		base:        base,
		window:      window,
		reduction:   reduction,
		now:         time.Now,
	}
}

// TrackError records one classified error and returns the current error
// rate: errors observed within the trailing window divided by the window
// length in seconds, clamped to [0,1].
func (c *Controller) TrackError(cat monitor.Category) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.counts[cat]++
	c.consecutiveFailures++
	c.lastFailure = now
	c.timestamps = append(c.timestamps, now)
	if len(c.timestamps) > maxTimestamps {
		c.timestamps = c.timestamps[len(c.timestamps)-maxTimestamps:]
	}
	return c.errorRateLocked(now)
}

func (c *Controller) errorRateLocked(now time.Time) float64 {
	cutoff := now.Add(-c.window)
	n := 0
	for _, ts := range c.timestamps {
		if ts.After(cutoff) {
			n++
		}
	}
	rate := float64(n) / c.window.Seconds()
	if rate > 1 {
		rate = 1
	}
	if rate < 0 {
		rate = 0
	}
	return rate
}

// ErrorRate recomputes the current windowed error rate.
func (c *Controller) ErrorRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorRateLocked(c.now())
}

// ShouldRetry reports whether another attempt is allowed. The attempt
// budget and the circuit breaker both have veto power.
func (c *Controller) ShouldRetry(circuitAllows bool) bool {
	if !circuitAllows {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount < c.maxAttempts
}

// CalculateBackoff returns base * 2^retryCount capped at MaxBackoff.
func (c *Controller) CalculateBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return backoff(c.base, c.retryCount)
}

func backoff(base time.Duration, n int) time.Duration {
	d := base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= MaxBackoff {
			return MaxBackoff
		}
	}
	if d > MaxBackoff {
		d = MaxBackoff
	}
	return d
}

// AdjustForRateLimit down-tunes the worker's concurrency budget when
// rate-limiting signatures were observed, floored at 1 so the worker is
// never silently throttled to zero.
func (c *Controller) AdjustForRateLimit(p launcher.Params) launcher.Params {
	c.mu.Lock()
	limited := c.counts[monitor.CategoryRateLimited] > 0
	c.mu.Unlock()
	if !limited {
		return p
	}
	reduced := int(float64(p.Rate) * c.reduction)
	if reduced < 1 {
		reduced = 1
	}
	if reduced != p.Rate {
		slog.Warn("reducing worker rate after rate limiting", "from", p.Rate, "to", reduced)
		p.Rate = reduced
	}
	return p
}

// ScheduleRetry arms one retry attempt: it consumes an attempt from the
// budget, computes the backoff, and asynchronously sleeps before calling
// startFn with rate-adjusted parameters. Returns false when no retry is
// allowed.
func (c *Controller) ScheduleRetry(p launcher.Params, startFn func(launcher.Params), circuitAllows bool) bool {
	if startFn == nil || !c.ShouldRetry(circuitAllows) {
		return false
	}
	c.mu.Lock()
	c.retryCount++
	attempt := c.retryCount
	delay := backoff(c.base, attempt-1)
	c.mu.Unlock()

	adjusted := c.AdjustForRateLimit(p)
	slog.Info("retry scheduled", "attempt", attempt, "backoff", delay, "params", adjusted.String())
	go func() {
		time.Sleep(delay)
		startFn(adjusted)
	}()
	return true
}

// RecordSuccess clears the attempt budget, the failure streak, and the
// error tally. A clean run means stale rate-limit history must not keep
// down-tuning future retries. This is the only reset path short of an
// explicit operator Reset.
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	c.counts = make(map[monitor.Category]int64)
	c.timestamps = nil
	c.retryCount = 0
	c.consecutiveFailures = 0
	c.lastFailure = time.Time{}
	c.mu.Unlock()
}

// Reset clears every counter, tally, and timestamp. Operator override.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.counts = make(map[monitor.Category]int64)
	c.timestamps = nil
	c.retryCount = 0
	c.consecutiveFailures = 0
	c.lastFailure = time.Time{}
	c.mu.Unlock()
}

// Snapshot is a point-in-time view of the controller state.
type Snapshot struct {
	RetryCount          int                        `json:"retry_count"`
	ConsecutiveFailures int                        `json:"consecutive_failures"`
	LastFailure         time.Time                  `json:"last_failure,omitempty"`
	ErrorRate           float64                    `json:"error_rate"`
	Counts              map[monitor.Category]int64 `json:"counts"`
}

// Status returns the current snapshot.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[monitor.Category]int64, len(c.counts))
	for k, v := range c.counts {
		counts[k] = v
	}
	return Snapshot{
		RetryCount:          c.retryCount,
		ConsecutiveFailures: c.consecutiveFailures,
		LastFailure:         c.lastFailure,
		ErrorRate:           c.errorRateLocked(c.now()),
		Counts:              counts,
	}
}

// SetClock replaces the controller's time source. Test hook.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
