package monitor

import "time"

// LogEntry is one classified worker output line.
type LogEntry struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// ring is a fixed-capacity circular buffer of log entries. Append is
// O(1) and memory stays bounded regardless of run length. Not
// goroutine-safe; the Monitor guards it with its own mutex.
type ring struct {
	entries []LogEntry
	start   int
	count   int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultBufferLines
	}
	return &ring{entries: make([]LogEntry, capacity)}
}

func (r *ring) append(e LogEntry) {
	if r.count < len(r.entries) {
		r.entries[(r.start+r.count)%len(r.entries)] = e
		r.count++
		return
	}
	// full: overwrite the oldest
	r.entries[r.start] = e
	r.start = (r.start + 1) % len(r.entries)
}

// snapshot returns entries oldest-first.
func (r *ring) snapshot() []LogEntry {
	out := make([]LogEntry, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(r.start+i)%len(r.entries)])
	}
	return out
}

func (r *ring) len() int { return r.count }
