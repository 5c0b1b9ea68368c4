package logsink

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/scoutd/scoutd/internal/monitor"
)

func TestNewSQLSinkRejectsEmptyDSN(t *testing.T) {
	if _, err := NewSQLSinkFromDSN("  "); err == nil {
		t.Fatalf("empty DSN must be rejected")
	}
}

func TestSQLSinkSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.db")
	s, err := NewSQLSinkFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if s.dialect != "sqlite" {
		t.Fatalf("dialect = %s", s.dialect)
	}

	ctx := context.Background()
	entries := []monitor.LogEntry{
		{RunID: "run-1", Timestamp: time.Now(), Level: monitor.LevelInfo, Message: "checked 5 links"},
		{RunID: "run-1", Timestamp: time.Now(), Level: monitor.LevelError, Message: "rate limit exceeded"},
	}
	for _, e := range entries {
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM worker_log_export WHERE run_id='run-1'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("exported rows = %d, want 2", n)
	}
	var level string
	err = db.QueryRow(`SELECT level FROM worker_log_export WHERE message='rate limit exceeded'`).Scan(&level)
	if err != nil {
		t.Fatal(err)
	}
	if level != "ERROR" {
		t.Fatalf("level = %s, want ERROR", level)
	}
}

func TestSQLSinkDialectSelection(t *testing.T) {
	s, err := NewSQLSinkFromDSN(filepath.Join(t.TempDir(), "plain-path.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	if s.dialect != "sqlite" {
		t.Fatalf("plain path should select sqlite, got %s", s.dialect)
	}
}
