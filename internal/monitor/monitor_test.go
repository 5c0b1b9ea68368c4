package monitor

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeProc feeds canned output to the monitor and reports a fixed exit.
type fakeProc struct {
	out      io.Reader
	exitCode int
	runtime  time.Duration
}

func (f *fakeProc) Output() io.Reader      { return f.out }
func (f *fakeProc) Wait() error            { return nil }
func (f *fakeProc) ExitCode() int          { return f.exitCode }
func (f *fakeProc) Runtime() time.Duration { return f.runtime }

func runMonitor(t *testing.T, output string, onError OnError) (*Monitor, int, time.Duration) {
	t.Helper()
	m := New("run-1", 0, nil)
	proc := &fakeProc{out: strings.NewReader(output), exitCode: 3, runtime: 7 * time.Second}
	var (
		gotCode    int
		gotRuntime time.Duration
	)
	done := make(chan struct{})
	m.StartMonitoring(proc, onError, func(code int, rt time.Duration) {
		gotCode, gotRuntime = code, rt
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("monitor never completed")
	}
	return m, gotCode, gotRuntime
}

func TestMonitorClassifiesAndTallies(t *testing.T) {
	output := strings.Join([]string{
		"starting worker",
		"ERROR: connection refused by target",
		"rate limit exceeded",
		"checked 15 links",
		"found 4 items",
		"",
		"done",
	}, "\n")

	var mu sync.Mutex
	var seen []Category
	m, code, rt := runMonitor(t, output, func(cat Category, line string) {
		mu.Lock()
		seen = append(seen, cat)
		mu.Unlock()
	})

	if code != 3 || rt != 7*time.Second {
		t.Fatalf("completion got (%d, %s), want (3, 7s)", code, rt)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != CategoryConnection || seen[1] != CategoryRateLimited {
		t.Fatalf("onError calls = %v", seen)
	}
	counts := m.ErrorCounts()
	if counts[CategoryConnection] != 1 || counts[CategoryRateLimited] != 1 {
		t.Fatalf("error counts = %v", counts)
	}
	links, items := m.Progress()
	if links != 15 || items != 4 {
		t.Fatalf("progress = (%d, %d), want (15, 4)", links, items)
	}
}

func TestMonitorSkipsBlankLines(t *testing.T) {
	m, _, _ := runMonitor(t, "one\n\n   \ntwo\n", nil)
	tail := m.Tail()
	if len(tail) != 2 || tail[0].Message != "one" || tail[1].Message != "two" {
		t.Fatalf("tail = %v", tail)
	}
}

func TestMonitorProgressKeepsMaximum(t *testing.T) {
	output := "checked 10 links\nchecked 25 links\nchecked 20 links\nfound 3\nfound 9\n"
	m, _, _ := runMonitor(t, output, nil)
	links, items := m.Progress()
	if links != 25 || items != 9 {
		t.Fatalf("progress = (%d, %d), want (25, 9)", links, items)
	}
}

func TestMonitorSinkReceivesEveryLine(t *testing.T) {
	var mu sync.Mutex
	var got []LogEntry
	m := New("run-2", 0, func(e LogEntry) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	proc := &fakeProc{out: strings.NewReader("alpha\nERROR beta\n")}
	done := make(chan struct{})
	m.StartMonitoring(proc, nil, func(int, time.Duration) { close(done) })
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("sink saw %d entries, want 2", len(got))
	}
	if got[0].RunID != "run-2" || got[0].Level != LevelInfo {
		t.Fatalf("first entry = %+v", got[0])
	}
	if got[1].Level != LevelError {
		t.Fatalf("second entry level = %s, want ERROR", got[1].Level)
	}
}

func TestMonitorGetFinalOutputTruncates(t *testing.T) {
	m, _, _ := runMonitor(t, "aaaa\nbbbb\ncccc\n", nil)
	out := m.GetFinalOutput(10)
	if len(out) != 10 {
		t.Fatalf("len = %d, want 10", len(out))
	}
	if !strings.HasSuffix(out, "cccc\n") {
		t.Fatalf("newest lines must survive truncation: %q", out)
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := newRing(3)
	for i := 1; i <= 5; i++ {
		r.append(LogEntry{Message: fmt.Sprintf("line %d", i)})
	}
	if r.len() != 3 {
		t.Fatalf("len = %d, want 3", r.len())
	}
	snap := r.snapshot()
	want := []string{"line 3", "line 4", "line 5"}
	for i, w := range want {
		if snap[i].Message != w {
			t.Fatalf("snapshot[%d] = %q, want %q", i, snap[i].Message, w)
		}
	}
}

func TestRingDefaultCapacity(t *testing.T) {
	r := newRing(0)
	if len(r.entries) != DefaultBufferLines {
		t.Fatalf("capacity = %d, want %d", len(r.entries), DefaultBufferLines)
	}
}
