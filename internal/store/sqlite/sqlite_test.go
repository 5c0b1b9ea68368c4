package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/scoutd/scoutd/internal/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "scoutd.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("empty path must be rejected")
	}
}

func TestRunLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	err := db.CreateRun(ctx, store.RunRow{
		ID:         "run-1",
		Status:     store.StatusRunning,
		PID:        1234,
		ParamsJSON: `{"industry":"plumbing","rate":10}`,
		StartedAt:  started,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusRunning || got.PID != 1234 {
		t.Fatalf("created run = %+v", got)
	}
	if got.FinishedAt.Valid || got.Reason.Valid {
		t.Fatalf("fresh run must not carry finish data: %+v", got)
	}

	finished := started.Add(time.Minute)
	err = db.UpdateRun(ctx, store.RunRow{
		ID:           "run-1",
		Status:       store.StatusFailed,
		PID:          1234,
		FinishedAt:   sql.NullTime{Time: finished, Valid: true},
		LinksChecked: 42,
		ItemsFound:   7,
		ErrorsJSON:   `{"connection":3}`,
		Reason:       sql.NullString{String: "worker exited with code 1", Valid: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err = db.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusFailed || got.LinksChecked != 42 || got.ItemsFound != 7 {
		t.Fatalf("updated run = %+v", got)
	}
	if !got.FinishedAt.Valid || !got.FinishedAt.Time.Equal(finished) {
		t.Fatalf("finished_at = %+v, want %s", got.FinishedAt, finished)
	}
	if !got.Reason.Valid || got.Reason.String != "worker exited with code 1" {
		t.Fatalf("reason = %+v", got.Reason)
	}
}

func TestGetRunMissing(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetRun(context.Background(), "absent"); err == nil {
		t.Fatalf("expected error for missing run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"a", "b", "c"} {
		err := db.CreateRun(ctx, store.RunRow{
			ID:         id,
			Status:     store.StatusCompleted,
			ParamsJSON: "{}",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	runs, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestAppendAndGetLogs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	for i, msg := range []string{"first", "second", "third"} {
		err := db.AppendLog(ctx, store.LogRow{
			RunID:      "run-1",
			OccurredAt: now.Add(time.Duration(i) * time.Second),
			Level:      "INFO",
			Message:    msg,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	logs, err := db.GetLogs(ctx, "run-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 || logs[0].Message != "third" || logs[1].Message != "second" {
		t.Fatalf("logs = %+v", logs)
	}
	// unknown run returns an empty slice, not an error
	logs, err = db.GetLogs(ctx, "absent", 10)
	if err != nil || len(logs) != 0 {
		t.Fatalf("logs for absent run = %v, %v", logs, err)
	}
}
