package scoutd

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/scoutd/scoutd/internal/config"
	"github.com/scoutd/scoutd/internal/launcher"
	"github.com/scoutd/scoutd/internal/logsink"
	chsink "github.com/scoutd/scoutd/internal/logsink/clickhouse"
	"github.com/scoutd/scoutd/internal/metrics"
	"github.com/scoutd/scoutd/internal/monitor"
	iapi "github.com/scoutd/scoutd/internal/server"
	"github.com/scoutd/scoutd/internal/store"
	"github.com/scoutd/scoutd/internal/store/factory"
	"github.com/scoutd/scoutd/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Params = launcher.Params

type Status = supervisor.Status

type RunRecord = supervisor.RunRecord

type LogEntry = monitor.LogEntry

type Store = store.Store

type LogSink = logsink.Sink

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.

type Supervisor struct{ inner *supervisor.Supervisor }

// Errors surfaced by Start.
var (
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrCircuitOpen    = supervisor.ErrCircuitOpen
)

func New(c *Config, st Store, sinks ...LogSink) *Supervisor {
	return &Supervisor{inner: supervisor.New(c, st, sinks...)}
}

func (s *Supervisor) Start(p Params) (string, error) { return s.inner.Start(p) }
func (s *Supervisor) Stop() error                    { return s.inner.Stop() }
func (s *Supervisor) Reset()                         { s.inner.Reset() }
func (s *Supervisor) GetStatus() Status              { return s.inner.GetStatus() }
func (s *Supervisor) Tail() []LogEntry               { return s.inner.Tail() }
func (s *Supervisor) ConfigVersion() string          { return s.inner.ConfigVersion() }

func LoadConfig(path string) (*Config, error) {
	return cfg.Load(path)
}

// OpenStore opens the run store selected by the DSN: postgres:// URLs
// use pgx, anything else is treated as a SQLite path.
func OpenStore(dsn string) (Store, error) {
	return factory.New(dsn)
}

// NewSQLLogSink opens a relational log export sink (SQLite or Postgres
// by DSN).
func NewSQLLogSink(dsn string) (LogSink, error) {
	return logsink.NewSQLSinkFromDSN(dsn)
}

// NewClickHouseLogSink opens a ClickHouse log export sink.
func NewClickHouseLogSink(addr, table string) (LogSink, error) {
	return chsink.New(addr, table)
}

// NewHTTPServer starts an HTTP server exposing the internal API using
// the given supervisor. st may be nil; the runs endpoints then 404.
func NewHTTPServer(addr, basePath string, s *Supervisor, st Store) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner, st)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it
// runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
