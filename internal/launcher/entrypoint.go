package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// EntryKind classifies how the resolved worker entry point must be invoked.
type EntryKind string

const (
	EntryBinary EntryKind = "binary" // standalone executable
	EntryScript EntryKind = "script" // python script file
	EntryModule EntryKind = "module" // importable python module
)

// ErrEntryPointNotFound is returned when no worker entry point exists.
// It is a plain value, not an exception: callers branch on it at the
// call site.
var ErrEntryPointNotFound = errors.New("launcher: worker entry point not found")

// EntryPoint is a resolved worker entry.
type EntryPoint struct {
	Kind EntryKind `json:"kind"`
	Path string    `json:"path"` // file path, or module name for EntryModule
}

// FindEntryPoint resolves the worker entry point in fixed priority order:
// an explicit path from config, a compiled worker binary in workDir, the
// bundled python script, and finally the installed python module.
func FindEntryPoint(explicit, workDir string) (EntryPoint, error) {
	if explicit != "" {
		if isExecutable(explicit) {
			return EntryPoint{Kind: EntryBinary, Path: explicit}, nil
		}
		if isRegular(explicit) {
			return EntryPoint{Kind: EntryScript, Path: explicit}, nil
		}
		return EntryPoint{}, fmt.Errorf("%w: configured path %s", ErrEntryPointNotFound, explicit)
	}
	if bin := filepath.Join(workDir, "scout-worker"); isExecutable(bin) {
		return EntryPoint{Kind: EntryBinary, Path: bin}, nil
	}
	if script := filepath.Join(workDir, "worker", "main.py"); isRegular(script) {
		return EntryPoint{Kind: EntryScript, Path: script}, nil
	}
	if _, err := exec.LookPath("python3"); err == nil {
		// Probe for an importable module without running it.
		probe := exec.Command("python3", "-c", "import importlib.util,sys; sys.exit(0 if importlib.util.find_spec('scout_worker') else 1)")
		if probe.Run() == nil {
			return EntryPoint{Kind: EntryModule, Path: "scout_worker"}, nil
		}
	}
	return EntryPoint{}, ErrEntryPointNotFound
}

// Validate checks that a script entry is at least syntactically loadable
// before we pay process-creation cost. Binaries and modules pass through.
func (e EntryPoint) Validate() error {
	if e.Kind != EntryScript {
		return nil
	}
	// #nosec G204 -- path was resolved by FindEntryPoint
	cmd := exec.Command("python3", "-m", "py_compile", e.Path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("launcher: script validation failed for %s: %s", e.Path, firstLine(out))
	}
	return nil
}

// Argv builds the full command line for this entry with the given params.
func (e EntryPoint) Argv(p Params) []string {
	switch e.Kind {
	case EntryScript:
		return append([]string{"python3", e.Path}, p.Args()...)
	case EntryModule:
		return append([]string{"python3", "-m", e.Path}, p.Args()...)
	default:
		return append([]string{e.Path}, p.Args()...)
	}
}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Mode().Perm()&0o111 != 0
}

func isRegular(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
