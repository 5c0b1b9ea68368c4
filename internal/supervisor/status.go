package supervisor

import (
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/scoutd/scoutd/internal/breaker"
	"github.com/scoutd/scoutd/internal/launcher"
	"github.com/scoutd/scoutd/internal/monitor"
	"github.com/scoutd/scoutd/internal/retry"
)

// RunRecord is the supervisor's durable view of a single run.
type RunRecord struct {
	ID           string                     `json:"id"`
	Status       string                     `json:"status"`
	PID          int                        `json:"pid,omitempty"`
	Params       launcher.Params            `json:"params"`
	StartedAt    time.Time                  `json:"started_at"`
	FinishedAt   time.Time                  `json:"finished_at,omitempty"`
	LinksChecked int64                      `json:"links_checked"`
	ItemsFound   int64                      `json:"items_found"`
	ErrorCounts  map[monitor.Category]int64 `json:"error_counts,omitempty"`
	Reason       string                     `json:"reason,omitempty"`
}

// Usage is a best-effort resource sample of the worker process. Zero
// values mean the sample was unavailable, not that usage was zero.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
}

// Status is the full observable state of the supervisor: the current
// (or most recent) run plus retry and breaker snapshots.
type Status struct {
	Running       bool             `json:"running"`
	Run           *RunRecord       `json:"run,omitempty"`
	Uptime        time.Duration    `json:"uptime,omitempty"`
	Usage         *Usage           `json:"usage,omitempty"`
	Retry         retry.Snapshot   `json:"retry"`
	Breaker       breaker.Snapshot `json:"breaker"`
	ConfigVersion string           `json:"config_version"`
}

// GetStatus re-polls process liveness rather than trusting the recorded
// status, so a worker that died between monitor ticks is reported dead.
func (s *Supervisor) GetStatus() Status {
	st := Status{
		Retry:         s.rc.Status(),
		Breaker:       s.brk.Status(),
		ConfigVersion: s.cfg.Version,
	}

	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return st
	}

	running := r.handle.IsRunning()
	st.Running = running

	s.mu.Lock()
	rec := r.record
	s.mu.Unlock()
	if running {
		// the record is only finalized on exit; fill live progress here
		rec.LinksChecked, rec.ItemsFound = r.mon.Progress()
		rec.ErrorCounts = r.mon.ErrorCounts()
		st.Uptime = r.handle.Runtime()
		st.Usage = sampleUsage(rec.PID)
	}
	st.Run = &rec
	return st
}

// Tail returns the buffered log tail of the current or most recent run.
func (s *Supervisor) Tail() []monitor.LogEntry {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.mon.Tail()
}

// sampleUsage reads CPU and RSS for pid via gopsutil. Best effort: any
// error (process gone, permission) yields nil.
func sampleUsage(pid int) *Usage {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	u := &Usage{}
	if cpu, err := p.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		u.MemoryRSS = mem.RSS
	}
	return u
}
