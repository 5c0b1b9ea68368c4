package monitor

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBufferLines bounds the in-memory tail kept per run.
const DefaultBufferLines = 1000

// Sink receives every classified line for external persistence.
// Implementations must not block for long and must be safe for
// concurrent use; send failures are the sink's problem, never the
// monitor's.
type Sink func(LogEntry)

// OnError is invoked synchronously for each line carrying a failure
// signature, so retry/breaker state reacts before the next line is read.
type OnError func(cat Category, line string)

// OnComplete is invoked once when the output stream reaches EOF.
type OnComplete func(exitCode int, runtime time.Duration)

// Process is the slice of launcher.Handle the monitor needs.
type Process interface {
	Output() io.Reader
	Wait() error
	ExitCode() int
	Runtime() time.Duration
}

var (
	linksRe = regexp.MustCompile(`checked (\d+) links?`)
	itemsRe = regexp.MustCompile(`found (\d+)`)
)

// Monitor reads one worker's merged output stream line by line,
// classifies each line, and keeps a bounded tail for diagnostics.
type Monitor struct {
	mu           sync.Mutex
	runID        string
	buf          *ring
	sink         Sink
	linksChecked int64
	itemsFound   int64
	errCounts    map[Category]int64
	done         chan struct{}
}

// New creates a monitor for the given run. bufferLines <= 0 selects
// DefaultBufferLines. sink may be nil.
func New(runID string, bufferLines int, sink Sink) *Monitor {
	return &Monitor{
		runID:     runID,
		buf:       newRing(bufferLines),
		sink:      sink,
		errCounts: make(map[Category]int64),
		done:      make(chan struct{}),
	}
}

// StartMonitoring spawns the dedicated reader goroutine. It blocks on
// line reads until EOF, then reaps the process and reports completion.
func (m *Monitor) StartMonitoring(proc Process, onError OnError, onComplete OnComplete) {
	go m.loop(proc, onError, onComplete)
}

func (m *Monitor) loop(proc Process, onError OnError, onComplete OnComplete) {
	defer close(m.done)
	sc := bufio.NewScanner(proc.Output())
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		m.observe(line, onError)
	}
	// EOF: the pipe closed because the process exited (or was killed).
	_ = proc.Wait()
	if onComplete != nil {
		onComplete(proc.ExitCode(), proc.Runtime())
	}
}

// observe buffers and forwards the line first, then classifies it, so
// even malformed lines are never lost to a panicking classifier path.
func (m *Monitor) observe(line string, onError OnError) {
	entry := LogEntry{
		RunID:     m.runID,
		Timestamp: time.Now().UTC(),
		Level:     DetectLevel(line),
		Message:   line,
	}
	m.mu.Lock()
	m.buf.append(entry)
	sink := m.sink
	m.mu.Unlock()
	if sink != nil {
		sink(entry)
	}

	m.trackProgress(line)

	if cat := DetectErrorType(line); cat != CategoryNone {
		m.mu.Lock()
		m.errCounts[cat]++
		m.mu.Unlock()
		if onError != nil {
			onError(cat, line)
		}
	}
}

func (m *Monitor) trackProgress(line string) {
	l := strings.ToLower(line)
	if g := linksRe.FindStringSubmatch(l); g != nil {
		if n, err := strconv.ParseInt(g[1], 10, 64); err == nil {
			m.mu.Lock()
			m.linksChecked = maxInt64(m.linksChecked, n)
			m.mu.Unlock()
		}
	}
	if g := itemsRe.FindStringSubmatch(l); g != nil {
		if n, err := strconv.ParseInt(g[1], 10, 64); err == nil {
			m.mu.Lock()
			m.itemsFound = maxInt64(m.itemsFound, n)
			m.mu.Unlock()
		}
	}
}

// Done is closed when the reader loop has exited.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// GetFinalOutput returns up to maxChars of the buffered tail, newest
// lines preserved. This is the diagnostic of record for a worker that
// crashed before emitting anything structured.
func (m *Monitor) GetFinalOutput(maxChars int) string {
	m.mu.Lock()
	entries := m.buf.snapshot()
	m.mu.Unlock()
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Message)
		b.WriteByte('\n')
	}
	s := b.String()
	if maxChars > 0 && len(s) > maxChars {
		s = s[len(s)-maxChars:]
	}
	return s
}

// Tail returns the buffered entries oldest-first.
func (m *Monitor) Tail() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.snapshot()
}

// Progress returns the cumulative counters parsed from worker output.
func (m *Monitor) Progress() (linksChecked, itemsFound int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linksChecked, m.itemsFound
}

// ErrorCounts returns a copy of the per-category error counters.
func (m *Monitor) ErrorCounts() map[Category]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Category]int64, len(m.errCounts))
	for k, v := range m.errCounts {
		out[k] = v
	}
	return out
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
