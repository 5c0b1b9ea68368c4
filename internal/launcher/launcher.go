package launcher

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// StopTimeout bounds how long Stop waits for a graceful exit before
// escalating to SIGKILL.
const StopTimeout = 10 * time.Second

// Handle owns one spawned worker process. Stdout and stderr are merged
// into a single stream so the monitor observes lines in emission order.
// All mutable state is guarded by mu.
type Handle struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	output    io.ReadCloser // merged stdout+stderr
	startedAt time.Time
	waitDone  chan struct{} // closed when Wait returns
	waitErr   error
	stopped   bool
}

// Start spawns argv with the given env and workdir. The child gets its
// own process group so Stop can signal the whole tree.
func Start(argv []string, env []string, workDir string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("launcher: empty argv")
	}
	// #nosec G204 -- argv is built by EntryPoint.Argv from validated params
	cmd := exec.Command(argv[0], argv[1:]...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	if len(env) > 0 {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		_ = pipe.Close()
		return nil, err
	}
	return &Handle{
		cmd:       cmd,
		output:    pipe,
		startedAt: time.Now(),
		waitDone:  make(chan struct{}),
	}, nil
}

// Output returns the merged stdout+stderr stream. Exactly one reader
// (the monitor) must drain it to EOF.
func (h *Handle) Output() io.Reader { return h.output }

// PID returns the child pid, or 0 when the process never started.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil && h.cmd.Process != nil {
		return h.cmd.Process.Pid
	}
	return 0
}

// StartedAt reports when the process was spawned.
func (h *Handle) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startedAt
}

// Wait reaps the child and records its exit error. Safe to call once;
// the monitor owns the call. Other goroutines use WaitDone.
func (h *Handle) Wait() error {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.waitErr = err
	h.mu.Unlock()
	close(h.waitDone)
	return err
}

// WaitDone is closed once Wait has returned.
func (h *Handle) WaitDone() <-chan struct{} { return h.waitDone }

// ExitCode returns the child's exit code after Wait completed.
// -1 means killed by signal or not yet reaped.
func (h *Handle) ExitCode() int {
	select {
	case <-h.waitDone:
	default:
		return -1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.waitErr == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(h.waitErr, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// IsRunning is a non-blocking liveness probe. It signals the pid rather
// than trusting internal state, and treats Linux zombies as not alive.
func (h *Handle) IsRunning() bool {
	pid := h.PID()
	if pid == 0 {
		return false
	}
	select {
	case <-h.waitDone:
		return false
	default:
	}
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// Stop requests graceful termination of the process group, waits up to
// StopTimeout, then escalates to SIGKILL. Calling Stop on an already
// stopped process is a no-op.
func (h *Handle) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	cmd := h.cmd
	h.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	select {
	case <-h.waitDone:
		return nil
	default:
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-h.waitDone:
		return nil
	case <-time.After(StopTimeout):
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	select {
	case <-h.waitDone:
	case <-time.After(2 * time.Second):
		// reaping is owned by the monitor; best-effort from here
	}
	return nil
}

// StopRequested reports whether Stop was called on this handle.
func (h *Handle) StopRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Runtime reports how long the process has been (or was) alive.
func (h *Handle) Runtime() time.Duration {
	return time.Since(h.StartedAt())
}

// isZombieLinux reports whether /proc/<pid>/status shows a zombie (Z) state.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
