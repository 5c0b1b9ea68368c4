package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scoutd/scoutd/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// The DSN is a filesystem path; use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs(
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			pid INTEGER NOT NULL,
			params TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NULL,
			links_checked INTEGER NOT NULL DEFAULT 0,
			items_found INTEGER NOT NULL DEFAULT 0,
			errors TEXT NOT NULL DEFAULT '{}',
			reason TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);`,
		`CREATE TABLE IF NOT EXISTS run_logs(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs(run_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) CreateRun(ctx context.Context, r store.RunRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs(id, status, pid, params, started_at, finished_at, links_checked, items_found, errors, reason)
		VALUES(?, ?, ?, ?, ?, NULL, 0, 0, '{}', NULL);`,
		r.ID, r.Status, r.PID, r.ParamsJSON, r.StartedAt.UTC())
	return err
}

func (s *DB) UpdateRun(ctx context.Context, r store.RunRow) error {
	finished := interface{}(nil)
	if r.FinishedAt.Valid {
		finished = r.FinishedAt.Time.UTC()
	}
	var reason any
	if r.Reason.Valid {
		reason = r.Reason.String
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status=?, pid=?, finished_at=?, links_checked=?, items_found=?, errors=?, reason=?
		WHERE id=?;`,
		r.Status, r.PID, finished, r.LinksChecked, r.ItemsFound, r.ErrorsJSON, reason, r.ID)
	return err
}

func (s *DB) GetRun(ctx context.Context, id string) (store.RunRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, pid, params, started_at, finished_at, links_checked, items_found, errors, reason
		FROM runs WHERE id=?;`, id)
	return scanRun(row)
}

func (s *DB) ListRuns(ctx context.Context, limit int) ([]store.RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, pid, params, started_at, finished_at, links_checked, items_found, errors, reason
		FROM runs ORDER BY started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRuns(rows)
}

func (s *DB) AppendLog(ctx context.Context, l store.LogRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_logs(run_id, occurred_at, level, message)
		VALUES(?, ?, ?, ?);`,
		l.RunID, l.OccurredAt.UTC(), l.Level, l.Message)
	return err
}

func (s *DB) GetLogs(ctx context.Context, runID string, limit int) ([]store.LogRow, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, occurred_at, level, message
		FROM run_logs WHERE run_id=? ORDER BY id DESC LIMIT ?;`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.LogRow, 0)
	for rows.Next() {
		var l store.LogRow
		var ts time.Time
		if err := rows.Scan(&l.RunID, &ts, &l.Level, &l.Message); err != nil {
			return nil, err
		}
		l.OccurredAt = ts
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (store.RunRow, error) {
	var r store.RunRow
	err := row.Scan(&r.ID, &r.Status, &r.PID, &r.ParamsJSON, &r.StartedAt, &r.FinishedAt,
		&r.LinksChecked, &r.ItemsFound, &r.ErrorsJSON, &r.Reason)
	return r, err
}

func scanRuns(rows *sql.Rows) ([]store.RunRow, error) {
	out := make([]store.RunRow, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
