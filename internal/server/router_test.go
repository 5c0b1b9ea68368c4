package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scoutd/scoutd/internal/config"
	"github.com/scoutd/scoutd/internal/store"
	"github.com/scoutd/scoutd/internal/store/sqlite"
	"github.com/scoutd/scoutd/internal/supervisor"
)

func newTestRouter(t *testing.T, st store.Store) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Supervision: config.Supervision{
			MaxRetryAttempts: 1,
			BackoffBase:      time.Second,
			FailureThreshold: 5,
			Penalty:          time.Minute,
			ErrorRateWindow:  time.Minute,
			BufferLines:      10,
		},
		Worker: config.Worker{
			// no entry point anywhere under this directory
			WorkDir: t.TempDir(),
		},
		Version: "test",
	}
	sup := supervisor.New(cfg, st)
	return NewRouter(sup, st, "/api").Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestStartRejectsBadJSON(t *testing.T) {
	h := newTestRouter(t, nil)
	w, out := doJSON(t, h, http.MethodPost, "/api/start", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
	if out["error"] == nil {
		t.Fatalf("expected error body, got %s", w.Body.String())
	}
}

func TestStartRejectsMissingIndustry(t *testing.T) {
	h := newTestRouter(t, nil)
	w, out := doJSON(t, h, http.MethodPost, "/api/start", `{"rate":10}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
	if msg, _ := out["error"].(string); !strings.Contains(msg, "industry") {
		t.Fatalf("error = %q", msg)
	}
}

func TestStartUnresolvableWorker(t *testing.T) {
	h := newTestRouter(t, nil)
	w, out := doJSON(t, h, http.MethodPost, "/api/start", `{"industry":"plumbing"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
	if msg, _ := out["error"].(string); !strings.Contains(msg, "entry point") {
		t.Fatalf("error = %q", msg)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := newTestRouter(t, nil)
	w, out := doJSON(t, h, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	if out["running"] != false {
		t.Fatalf("running = %v, want false", out["running"])
	}
	if out["config_version"] != "test" {
		t.Fatalf("config_version = %v", out["config_version"])
	}
	if out["breaker"] == nil || out["retry"] == nil {
		t.Fatalf("status body missing snapshots: %s", w.Body.String())
	}
}

func TestStopAndResetAlwaysSucceed(t *testing.T) {
	h := newTestRouter(t, nil)
	for _, path := range []string{"/api/stop", "/api/reset"} {
		w, out := doJSON(t, h, http.MethodPost, path, "")
		if w.Code != http.StatusOK || out["ok"] != true {
			t.Fatalf("%s: code=%d body=%s", path, w.Code, w.Body.String())
		}
	}
}

func TestRunsWithoutStore(t *testing.T) {
	h := newTestRouter(t, nil)
	w, _ := doJSON(t, h, http.MethodGet, "/api/runs", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", w.Code)
	}
}

func TestRunsEndpoints(t *testing.T) {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	started := time.Now().UTC().Truncate(time.Second)
	if err := db.CreateRun(ctx, store.RunRow{
		ID:         "run-1",
		Status:     store.StatusRunning,
		PID:        42,
		ParamsJSON: `{"industry":"plumbing","rate":10}`,
		StartedAt:  started,
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateRun(ctx, store.RunRow{
		ID:         "run-1",
		Status:     store.StatusCompleted,
		PID:        42,
		FinishedAt: sql.NullTime{Time: started.Add(time.Minute), Valid: true},
		ErrorsJSON: "{}",
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendLog(ctx, store.LogRow{
		RunID:      "run-1",
		OccurredAt: started,
		Level:      "INFO",
		Message:    "checked 5 links",
	}); err != nil {
		t.Fatal(err)
	}

	h := newTestRouter(t, db)

	w, _ := doJSON(t, h, http.MethodGet, "/api/runs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("runs code = %d", w.Code)
	}
	var runs []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0]["id"] != "run-1" || runs[0]["status"] != "completed" {
		t.Fatalf("runs = %v", runs)
	}

	w, out := doJSON(t, h, http.MethodGet, "/api/runs/run-1", "")
	if w.Code != http.StatusOK || out["id"] != "run-1" {
		t.Fatalf("run: code=%d body=%s", w.Code, w.Body.String())
	}

	w, _ = doJSON(t, h, http.MethodGet, "/api/runs/run-1/log", "")
	if w.Code != http.StatusOK {
		t.Fatalf("run log code = %d", w.Code)
	}
	var logs []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &logs); err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %v", logs)
	}

	w, _ = doJSON(t, h, http.MethodGet, "/api/runs/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing run code = %d, want 404", w.Code)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{"  /api  ", "/api"},
	}
	for _, tc := range cases {
		if got := sanitizeBase(tc.in); got != tc.want {
			t.Errorf("sanitizeBase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
