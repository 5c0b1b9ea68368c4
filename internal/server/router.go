package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scoutd/scoutd/internal/launcher"
	"github.com/scoutd/scoutd/internal/store"
	"github.com/scoutd/scoutd/internal/supervisor"
)

// Router provides embeddable HTTP handlers for controlling the worker
// supervisor.
// Endpoints:
//   POST {basePath}/start         body: launch params JSON
//   POST {basePath}/stop
//   POST {basePath}/reset
//   GET  {basePath}/status
//   GET  {basePath}/log           query: limit=N (buffered tail)
//   GET  {basePath}/runs          query: limit=N
//   GET  {basePath}/runs/:id
//   GET  {basePath}/runs/:id/log  query: limit=N
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	sup      *supervisor.Supervisor
	st       store.Store // optional; runs endpoints 404 without it
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/start, /api/stop, /api/status.
func NewRouter(sup *supervisor.Supervisor, st store.Store, basePath string) *Router {
	bp := sanitizeBase(basePath)
	return &Router{sup: sup, st: st, basePath: bp}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/reset", r.handleReset)
	group.GET("/status", r.handleStatus)
	group.GET("/log", r.handleLog)
	group.GET("/runs", r.handleRuns)
	group.GET("/runs/:id", r.handleRun)
	group.GET("/runs/:id/log", r.handleRunLog)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server's Shutdown or Close.
func NewServer(addr, basePath string, sup *supervisor.Supervisor, st store.Store) (*http.Server, error) {
	r := NewRouter(sup, st, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type startResp struct {
	OK    bool   `json:"ok"`
	RunID string `json:"run_id"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStart(c *gin.Context) {
	var params launcher.Params
	if err := c.ShouldBindJSON(&params); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	runID, err := r.sup.Start(params)
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	case errors.Is(err, supervisor.ErrCircuitOpen):
		writeJSON(c, http.StatusTooManyRequests, errorResp{Error: err.Error()})
		return
	case err != nil:
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, startResp{OK: true, RunID: runID})
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.sup.Stop(); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleReset(c *gin.Context) {
	r.sup.Reset()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.GetStatus())
}

func (r *Router) handleLog(c *gin.Context) {
	tail := r.sup.Tail()
	if limit := queryLimit(c, 0); limit > 0 && len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	writeJSON(c, http.StatusOK, tail)
}

func (r *Router) handleRuns(c *gin.Context) {
	if r.st == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "run store not configured"})
		return
	}
	rows, err := r.st.ListRuns(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, runViews(rows))
}

func (r *Router) handleRun(c *gin.Context) {
	if r.st == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "run store not configured"})
		return
	}
	row, err := r.st.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, runView(row))
}

func (r *Router) handleRunLog(c *gin.Context) {
	if r.st == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "run store not configured"})
		return
	}
	rows, err := r.st.GetLogs(c.Request.Context(), c.Param("id"), queryLimit(c, 500))
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, rows)
}

func queryLimit(c *gin.Context, def int) int {
	s := c.Query("limit")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
