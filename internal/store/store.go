package store

import (
	"context"
	"database/sql"
	"time"
)

// Run statuses persisted with each supervised execution.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// RunRow is the persisted form of one supervised run. Params and
// ErrorCounts are JSON blobs so the schema survives parameter changes.
type RunRow struct {
	ID           string
	Status       string
	PID          int
	ParamsJSON   string
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	LinksChecked int64
	ItemsFound   int64
	ErrorsJSON   string
	Reason       sql.NullString
}

// LogRow is one classified worker output line belonging to a run.
type LogRow struct {
	RunID      string    `json:"run_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
}

// Store persists runs and their log lines. Write failures must be
// swallowed by callers on the monitoring path; they never interrupt a
// run. Implementations must be safe for concurrent use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	CreateRun(ctx context.Context, r RunRow) error
	UpdateRun(ctx context.Context, r RunRow) error
	GetRun(ctx context.Context, id string) (RunRow, error)
	ListRuns(ctx context.Context, limit int) ([]RunRow, error)
	AppendLog(ctx context.Context, l LogRow) error
	GetLogs(ctx context.Context, runID string, limit int) ([]LogRow, error)
	Close() error
}
