package launcher

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), perm); err != nil {
		t.Fatal(err)
	}
}

func TestFindEntryPointExplicitBinary(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "custom-worker")
	writeFile(t, bin, 0o755)

	ep, err := FindEntryPoint(bin, dir)
	if err != nil {
		t.Fatal(err)
	}
	if ep.Kind != EntryBinary || ep.Path != bin {
		t.Fatalf("got %+v", ep)
	}
}

func TestFindEntryPointExplicitScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "worker.py")
	writeFile(t, script, 0o644)

	ep, err := FindEntryPoint(script, dir)
	if err != nil {
		t.Fatal(err)
	}
	if ep.Kind != EntryScript || ep.Path != script {
		t.Fatalf("got %+v", ep)
	}
}

func TestFindEntryPointExplicitMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := FindEntryPoint(filepath.Join(dir, "nope"), dir)
	if !errors.Is(err, ErrEntryPointNotFound) {
		t.Fatalf("err = %v, want ErrEntryPointNotFound", err)
	}
}

func TestFindEntryPointWorkDirBinary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "scout-worker"), 0o755)
	// the bundled script must lose to the compiled binary
	writeFile(t, filepath.Join(dir, "worker", "main.py"), 0o644)

	ep, err := FindEntryPoint("", dir)
	if err != nil {
		t.Fatal(err)
	}
	if ep.Kind != EntryBinary || ep.Path != filepath.Join(dir, "scout-worker") {
		t.Fatalf("got %+v", ep)
	}
}

func TestFindEntryPointWorkDirScript(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "worker", "main.py"), 0o644)

	ep, err := FindEntryPoint("", dir)
	if err != nil {
		t.Fatal(err)
	}
	if ep.Kind != EntryScript || ep.Path != filepath.Join(dir, "worker", "main.py") {
		t.Fatalf("got %+v", ep)
	}
}

func TestArgvPerKind(t *testing.T) {
	p := Params{Industry: "hvac", Rate: 10, Mode: ModeStandard}
	base := p.Args()

	cases := []struct {
		ep   EntryPoint
		want []string
	}{
		{EntryPoint{Kind: EntryBinary, Path: "/opt/scout-worker"}, append([]string{"/opt/scout-worker"}, base...)},
		{EntryPoint{Kind: EntryScript, Path: "/app/worker/main.py"}, append([]string{"python3", "/app/worker/main.py"}, base...)},
		{EntryPoint{Kind: EntryModule, Path: "scout_worker"}, append([]string{"python3", "-m", "scout_worker"}, base...)},
	}
	for _, tc := range cases {
		if got := tc.ep.Argv(p); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Argv(%s) = %v, want %v", tc.ep.Kind, got, tc.want)
		}
	}
}

func TestValidatePassesNonScripts(t *testing.T) {
	if err := (EntryPoint{Kind: EntryBinary, Path: "/bin/true"}).Validate(); err != nil {
		t.Fatalf("binary validation should be a no-op: %v", err)
	}
	if err := (EntryPoint{Kind: EntryModule, Path: "scout_worker"}).Validate(); err != nil {
		t.Fatalf("module validation should be a no-op: %v", err)
	}
}
