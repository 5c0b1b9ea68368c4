package scoutd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigAndNew(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[supervision]
max_retry_attempts = 2
backoff_base = "5s"

[worker]
workdir = "` + dir + `"

[worker.defaults]
industry = "plumbing"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Supervision.MaxRetryAttempts != 2 || cfg.Supervision.BackoffBase != 5*time.Second {
		t.Fatalf("supervision = %+v", cfg.Supervision)
	}
	if cfg.Worker.Defaults.Industry != "plumbing" {
		t.Fatalf("defaults = %+v", cfg.Worker.Defaults)
	}

	sup := New(cfg, nil)
	st := sup.GetStatus()
	if st.Running {
		t.Fatalf("fresh supervisor reports a running worker")
	}
	if sup.ConfigVersion() != cfg.Version {
		t.Fatalf("config version mismatch")
	}
}

func TestOpenStoreSQLite(t *testing.T) {
	st, err := OpenStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	// the factory creates the schema, so reads work immediately
	runs, err := st.ListRuns(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Fatalf("fresh store has %d runs", len(runs))
	}
}

func TestOpenStoreEmptyDSN(t *testing.T) {
	if _, err := OpenStore(""); err == nil {
		t.Fatalf("empty DSN must be rejected")
	}
}

func TestRegisterMetricsIdempotent(t *testing.T) {
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatal(err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("second registration must be a no-op: %v", err)
	}
}
