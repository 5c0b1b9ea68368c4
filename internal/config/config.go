package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/scoutd/scoutd/internal/launcher"
	"github.com/scoutd/scoutd/internal/logger"
)

// Supervision holds the retry/breaker tuning knobs. Loaded once per run
// cycle; a changed file triggers a cycle restart, never an in-place
// mutation of a running supervisor.
type Supervision struct {
	MaxRetryAttempts   int           `toml:"max_retry_attempts" mapstructure:"max_retry_attempts"`
	BackoffBase        time.Duration `toml:"backoff_base" mapstructure:"backoff_base"`
	FailureThreshold   int           `toml:"failure_threshold" mapstructure:"failure_threshold"`
	Penalty            time.Duration `toml:"penalty" mapstructure:"penalty"`
	ErrorRateWindow    time.Duration `toml:"error_rate_window" mapstructure:"error_rate_window"`
	ErrorRateThreshold float64       `toml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	RateReduction      float64       `toml:"rate_reduction" mapstructure:"rate_reduction"`
	EarlyExit          time.Duration `toml:"early_exit" mapstructure:"early_exit"`
	BufferLines        int           `toml:"buffer_lines" mapstructure:"buffer_lines"`
}

// Worker describes where the collection worker lives and its default
// invocation parameters.
type Worker struct {
	WorkDir    string          `toml:"workdir" mapstructure:"workdir"`
	EntryPoint string          `toml:"entrypoint" mapstructure:"entrypoint"` // optional explicit path
	Env        []string        `toml:"env" mapstructure:"env"`
	Defaults   launcher.Params `toml:"defaults" mapstructure:"defaults"`
}

// Server configures the HTTP control surface.
type Server struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// Store configures run persistence. DSN selects the driver: a
// postgres:// URL uses pgx, anything else is treated as a SQLite path.
type Store struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// LogSink configures the external log-line export.
type LogSink struct {
	DSN             string `toml:"dsn" mapstructure:"dsn"` // SQL sink, optional
	ClickHouseAddr  string `toml:"clickhouse_addr" mapstructure:"clickhouse_addr"`
	ClickHouseTable string `toml:"clickhouse_table" mapstructure:"clickhouse_table"`
}

// Config is the full daemon configuration snapshot. Version is a
// content hash used to detect out-of-band file changes.
type Config struct {
	Supervision Supervision   `toml:"supervision" mapstructure:"supervision"`
	Worker      Worker        `toml:"worker" mapstructure:"worker"`
	Server      *Server       `toml:"server" mapstructure:"server"`
	Metrics     *Metrics      `toml:"metrics" mapstructure:"metrics"`
	Store       *Store        `toml:"store" mapstructure:"store"`
	LogSink     *LogSink      `toml:"logsink" mapstructure:"logsink"`
	Log         logger.Config `toml:"log" mapstructure:"log"`

	Version string `toml:"-" mapstructure:"-"`
	Path    string `toml:"-" mapstructure:"-"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	cfg.applyDefaults()
	ver, err := hashFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Version = ver
	cfg.Path = path
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	s := &c.Supervision
	if s.MaxRetryAttempts <= 0 {
		s.MaxRetryAttempts = 3
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = 10 * time.Second
	}
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.Penalty <= 0 {
		s.Penalty = 30 * time.Second
	}
	if s.ErrorRateWindow <= 0 {
		s.ErrorRateWindow = 60 * time.Second
	}
	if s.ErrorRateThreshold <= 0 || s.ErrorRateThreshold > 1 {
		s.ErrorRateThreshold = 0.5
	}
	if s.RateReduction <= 0 || s.RateReduction >= 1 {
		s.RateReduction = 0.7
	}
	if s.EarlyExit <= 0 {
		s.EarlyExit = 5 * time.Second
	}
	if s.BufferLines <= 0 {
		s.BufferLines = 1000
	}
}

// hashFile returns the hex sha256 of the file contents.
func hashFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: hash %s: %w", path, err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Changed reports whether the file at c.Path no longer matches c.Version.
// Read errors are treated as "unchanged" so a transiently unreadable
// file does not bounce the cycle.
func (c *Config) Changed() bool {
	ver, err := hashFile(c.Path)
	if err != nil {
		return false
	}
	return ver != c.Version
}

// Watch polls the config file every interval and invokes onChange once
// when the content hash diverges, then stops. The caller restarts the
// cycle with a freshly loaded snapshot. The returned func cancels the
// watch.
func (c *Config) Watch(interval time.Duration, onChange func()) func() {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if c.Changed() {
					onChange()
					return
				}
			case <-stop:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}
