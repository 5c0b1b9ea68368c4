package supervisor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scoutd/scoutd/internal/breaker"
	"github.com/scoutd/scoutd/internal/config"
	"github.com/scoutd/scoutd/internal/launcher"
	"github.com/scoutd/scoutd/internal/logsink"
	"github.com/scoutd/scoutd/internal/metrics"
	"github.com/scoutd/scoutd/internal/monitor"
	"github.com/scoutd/scoutd/internal/retry"
	"github.com/scoutd/scoutd/internal/store"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is active.
	ErrAlreadyRunning = errors.New("supervisor: a run is already active")
	// ErrCircuitOpen is returned by Start while the breaker denies launches.
	ErrCircuitOpen = errors.New("supervisor: circuit_breaker_open")
)

// tailChars bounds the diagnostic tail attached to failure reasons.
const tailChars = 2000

// run is the supervisor's view of one supervised execution.
type run struct {
	record      RunRecord
	handle      *launcher.Handle
	mon         *monitor.Monitor
	out         io.WriteCloser // rotating raw-output file, may be nil
	params      launcher.Params
	rateAborted bool // set when the error-rate guard killed the run
}

// Supervisor owns one worker at a time: it admits launches through the
// circuit breaker, spawns the process, monitors its output, and decides
// between retry and terminal failure on exit. It is constructed
// explicitly and owned by the caller; process-wide uniqueness is the
// caller's concern, not a package global's.
type Supervisor struct {
	mu       sync.Mutex
	cfg      *config.Config
	brk      *breaker.Breaker
	rc       *retry.Controller
	st       store.Store    // optional
	sinks    []logsink.Sink // optional
	current  *run
	starting bool   // a launch holds the slot but has not spawned yet
	gen      uint64 // bumped by Stop to invalidate pending retries
}

// New builds a supervisor from a config snapshot. Store and sinks are
// optional collaborators; pass nil/empty to run without persistence.
func New(cfg *config.Config, st store.Store, sinks ...logsink.Sink) *Supervisor {
	sup := cfg.Supervision
	return &Supervisor{
		cfg:   cfg,
		brk:   breaker.New(sup.FailureThreshold, sup.Penalty),
		rc:    retry.New(sup.MaxRetryAttempts, sup.BackoffBase, sup.ErrorRateWindow, sup.RateReduction),
		st:    st,
		sinks: sinks,
	}
}

// Start launches a new supervised run. It fails synchronously (and is
// never retried automatically) when a run is already active, the
// breaker is open, no entry point resolves, or the script does not
// validate.
func (s *Supervisor) Start(params launcher.Params) (string, error) {
	s.mu.Lock()
	active := s.starting || (s.current != nil && s.current.handle.IsRunning())
	s.mu.Unlock()
	if active {
		return "", ErrAlreadyRunning
	}
	if !s.brk.CheckAndUpdate() {
		s.publishBreakerState()
		return "", ErrCircuitOpen
	}
	runID, err := s.start(params)
	if err != nil {
		// an admitted launch that never produced a process must hand
		// the HALF_OPEN probe back, or the breaker stays wedged with a
		// probe in flight until an operator Reset
		s.brk.ReleaseProbe()
	}
	return runID, err
}

// start is the admission-free launch path shared by Start and the retry
// scheduler. Retry attempts were already admitted by the breaker when
// they were scheduled.
func (s *Supervisor) start(params launcher.Params) (_ string, err error) {
	// Reserve the run slot before resolving or spawning anything, so two
	// concurrent launches can never both be admitted. The reservation is
	// rolled back on any failure below.
	s.mu.Lock()
	if s.starting || (s.current != nil && s.current.handle.IsRunning()) {
		s.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	s.starting = true
	s.mu.Unlock()
	defer func() {
		if err != nil {
			s.mu.Lock()
			s.starting = false
			s.mu.Unlock()
		}
	}()

	if err = params.Normalize(); err != nil {
		return "", err
	}

	w := s.cfg.Worker
	ep, err := launcher.FindEntryPoint(w.EntryPoint, w.WorkDir)
	if err != nil {
		return "", err
	}
	if err = ep.Validate(); err != nil {
		return "", err
	}

	handle, err := launcher.Start(ep.Argv(params), w.Env, w.WorkDir)
	if err != nil {
		return "", fmt.Errorf("supervisor: spawn worker: %w", err)
	}

	runID := uuid.NewString()
	out, werr := s.cfg.Log.Writer("worker-" + params.Industry)
	if werr != nil {
		slog.Warn("worker output file unavailable", "err", werr)
	}

	r := &run{
		record: RunRecord{
			ID:        runID,
			Status:    store.StatusRunning,
			PID:       handle.PID(),
			Params:    params,
			StartedAt: handle.StartedAt(),
		},
		handle: handle,
		out:    out,
		params: params,
	}
	r.mon = monitor.New(runID, s.cfg.Supervision.BufferLines, s.sinkFor(r))
	s.mu.Lock()
	s.current = r
	s.starting = false
	s.mu.Unlock()

	s.persistCreate(r)
	metrics.IncStart(params.Industry)
	s.publishBreakerState()
	slog.Info("worker started", "run_id", runID, "pid", r.record.PID, "entry", ep.Path, "params", params.String())

	r.mon.StartMonitoring(handle, s.onError, func(exitCode int, runtime time.Duration) {
		s.onComplete(r, exitCode, runtime)
	})
	return runID, nil
}

// sinkFor builds the monitor sink: raw file write, run store append,
// and external sinks, all fire-and-forget.
func (s *Supervisor) sinkFor(r *run) monitor.Sink {
	return func(e monitor.LogEntry) {
		if r.out != nil {
			_, _ = r.out.Write([]byte(e.Message + "\n"))
		}
		if s.st != nil {
			if err := s.st.AppendLog(context.Background(), store.LogRow{
				RunID:      e.RunID,
				OccurredAt: e.Timestamp,
				Level:      string(e.Level),
				Message:    e.Message,
			}); err != nil {
				slog.Debug("run log append failed", "err", err)
			}
		}
		for _, sink := range s.sinks {
			if err := sink.Send(context.Background(), e); err != nil {
				slog.Debug("log sink send failed", "err", err)
			}
		}
	}
}

// onError reacts to each classified error line: tally first, breaker
// second, so any breaker transition observes the updated tally.
func (s *Supervisor) onError(cat monitor.Category, line string) {
	rate := s.rc.TrackError(cat)
	s.brk.RecordFailure()
	metrics.IncClassifiedError(string(cat))
	s.publishBreakerState()
	slog.Warn("worker error observed", "category", cat, "rate", fmt.Sprintf("%.3f", rate), "line", truncate(line, 200))

	// Error-rate guard: a run drowning in errors is killed rather than
	// left burning requests. The kill happens off the reader goroutine
	// because Stop waits for the reader to drain.
	if threshold := s.cfg.Supervision.ErrorRateThreshold; threshold > 0 && rate >= threshold {
		s.mu.Lock()
		r := s.current
		if r != nil && !r.rateAborted {
			r.rateAborted = true
			s.mu.Unlock()
			slog.Error("error rate exceeded threshold, terminating run", "rate", rate, "threshold", threshold)
			go func() { _ = r.handle.Stop() }()
			return
		}
		s.mu.Unlock()
	}
}

// onComplete finalizes the run and decides between retry and terminal
// failure. Runs ended by Stop are reported as stopped, never failed.
func (s *Supervisor) onComplete(r *run, exitCode int, runtime time.Duration) {
	if r.out != nil {
		_ = r.out.Close()
	}

	earlyExit := s.cfg.Supervision.EarlyExit
	stopRequested := r.handle.StopRequested()

	links, items := r.mon.Progress()
	counts := r.mon.ErrorCounts()

	s.mu.Lock()
	rateAborted := r.rateAborted
	s.mu.Unlock()

	var status, reason string
	switch {
	case rateAborted:
		status = store.StatusFailed
		reason = fmt.Sprintf("terminated: error rate exceeded %.2f", s.cfg.Supervision.ErrorRateThreshold)
	case stopRequested:
		status = store.StatusStopped
		reason = "stopped by operator"
	case exitCode == 0 && runtime >= earlyExit:
		status = store.StatusCompleted
	default:
		status = store.StatusFailed
		reason = s.failureReason(r, exitCode, runtime, counts)
	}

	s.mu.Lock()
	r.record.Status = status
	r.record.FinishedAt = time.Now().UTC()
	r.record.LinksChecked = links
	r.record.ItemsFound = items
	r.record.ErrorCounts = counts
	r.record.Reason = reason
	s.mu.Unlock()

	s.persistUpdate(r)
	metrics.IncCompletion(status)
	slog.Info("worker run finished", "run_id", r.record.ID, "status", status, "exit_code", exitCode, "runtime", runtime, "reason", reason)

	switch status {
	case store.StatusCompleted:
		s.rc.RecordSuccess()
		s.brk.RecordSuccess()
		s.publishBreakerState()
	case store.StatusFailed:
		s.scheduleRetry(r.params)
	}
}

// failureReason builds a non-empty explanation for a failed run: the
// dominant classified category when one exists, otherwise the buffered
// output tail. The system never reports "failed" with an empty reason.
func (s *Supervisor) failureReason(r *run, exitCode int, runtime time.Duration, counts map[monitor.Category]int64) string {
	var b strings.Builder
	if runtime < s.cfg.Supervision.EarlyExit {
		fmt.Fprintf(&b, "startup failure: exited after %s (exit code %d)", runtime.Round(time.Millisecond), exitCode)
	} else {
		fmt.Fprintf(&b, "worker exited with code %d after %s", exitCode, runtime.Round(time.Second))
	}
	if cat := dominantCategory(counts); cat != monitor.CategoryNone {
		fmt.Fprintf(&b, "; dominant error: %s", cat)
	} else if tail := strings.TrimSpace(r.mon.GetFinalOutput(tailChars)); tail != "" {
		fmt.Fprintf(&b, "; output tail: %s", tail)
	} else {
		b.WriteString("; no output captured (unclassified crash)")
	}
	return b.String()
}

// scheduleRetry arms the retry path if both the attempt budget and the
// breaker allow another launch. The breaker admission is consumed here,
// at schedule time, so the delayed start skips the check.
func (s *Supervisor) scheduleRetry(params launcher.Params) {
	if !s.rc.ShouldRetry(true) {
		slog.Warn("retry budget exhausted; run is terminal", "industry", params.Industry)
		return
	}
	if !s.brk.CheckAndUpdate() {
		s.publishBreakerState()
		slog.Warn("circuit breaker denies retry", "state", s.brk.Status().State)
		return
	}
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	delay := s.rc.CalculateBackoff()
	metrics.ObserveBackoff(delay.Seconds())
	metrics.IncRetry(params.Industry)

	scheduled := s.rc.ScheduleRetry(params, func(p launcher.Params) {
		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if stale {
			slog.Info("pending retry cancelled by stop/reset")
			return
		}
		if _, err := s.start(p); err != nil {
			s.brk.ReleaseProbe()
			slog.Error("retry launch failed", "err", err)
		}
	}, true)
	if !scheduled {
		slog.Warn("retry not scheduled; budget exhausted")
	}
}

// Stop terminates the active run (if any), cancels pending retries, and
// resets retry/circuit state: operator intent means "stop trying".
// Calling Stop twice is a no-op the second time.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	s.gen++
	r := s.current
	s.mu.Unlock()

	if r != nil {
		if err := r.handle.Stop(); err != nil {
			return err
		}
		// wait for the monitor to drain and finalize the record
		select {
		case <-r.mon.Done():
		case <-time.After(launcher.StopTimeout + 5*time.Second):
			slog.Warn("monitor did not finish within join timeout")
		}
	}
	s.rc.Reset()
	s.brk.Reset()
	s.publishBreakerState()
	return nil
}

// Reset clears error tallies and breaker state without touching a
// running process. Operator override.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	s.rc.Reset()
	s.brk.Reset()
	s.publishBreakerState()
}

// ConfigVersion exposes the config snapshot hash this supervisor was
// built from.
func (s *Supervisor) ConfigVersion() string { return s.cfg.Version }

func (s *Supervisor) publishBreakerState() {
	st := s.brk.Status().State
	for _, v := range []breaker.State{breaker.Closed, breaker.Open, breaker.HalfOpen} {
		metrics.SetBreakerState(string(v), v == st)
	}
}

func (s *Supervisor) persistCreate(r *run) {
	if s.st == nil {
		return
	}
	paramsJSON, _ := json.Marshal(r.params)
	err := s.st.CreateRun(context.Background(), store.RunRow{
		ID:         r.record.ID,
		Status:     r.record.Status,
		PID:        r.record.PID,
		ParamsJSON: string(paramsJSON),
		StartedAt:  r.record.StartedAt,
	})
	if err != nil {
		slog.Warn("run create not persisted", "err", err)
	}
}

func (s *Supervisor) persistUpdate(r *run) {
	if s.st == nil {
		return
	}
	s.mu.Lock()
	rec := r.record
	s.mu.Unlock()
	paramsJSON, _ := json.Marshal(r.params)
	errsJSON, _ := json.Marshal(rec.ErrorCounts)
	row := store.RunRow{
		ID:           rec.ID,
		Status:       rec.Status,
		PID:          rec.PID,
		ParamsJSON:   string(paramsJSON),
		StartedAt:    rec.StartedAt,
		FinishedAt:   sql.NullTime{Time: rec.FinishedAt, Valid: !rec.FinishedAt.IsZero()},
		LinksChecked: rec.LinksChecked,
		ItemsFound:   rec.ItemsFound,
		ErrorsJSON:   string(errsJSON),
	}
	if rec.Reason != "" {
		row.Reason = sql.NullString{String: rec.Reason, Valid: true}
	}
	if err := s.st.UpdateRun(context.Background(), row); err != nil {
		slog.Warn("run update not persisted", "err", err)
	}
}

func dominantCategory(counts map[monitor.Category]int64) monitor.Category {
	best := monitor.CategoryNone
	var bestN int64
	for _, cat := range monitor.Categories {
		if n := counts[cat]; n > bestN {
			best, bestN = cat, n
		}
	}
	return best
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
