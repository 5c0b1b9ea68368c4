package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for raw worker output files.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where raw worker output is written. The worker's
// stdout and stderr arrive merged, so one rotating file per run name is
// enough. Rotation parameters follow lumberjack semantics.
type Config struct {
	Dir        string `toml:"dir" mapstructure:"dir"`                   // base directory for output logs
	OutputPath string `toml:"output_path" mapstructure:"output_path"`   // explicit path overrides Dir
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`   // megabytes before rotation
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`   // rotated files to keep
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"` // days to keep
	Compress   bool   `toml:"compress" mapstructure:"compress"`         // gzip rotated files
}

// Writer returns an io.WriteCloser for the merged worker output of the
// named run, or nil when no destination is configured.
func (c Config) Writer(name string) (io.WriteCloser, error) {
	path := c.OutputPath
	if path == "" && c.Dir != "" {
		path = filepath.Join(c.Dir, fmt.Sprintf("%s.output.log", name))
	}
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}, nil
}

// Setup installs the default slog logger for the daemon itself.
// Debug selects level; color is applied when the destination is a
// terminal-ish writer (the caller decides by passing os.Stderr).
func Setup(w io.Writer, debug, color bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if color {
		h = newColorHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
