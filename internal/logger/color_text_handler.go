package logger

import (
	"context"
	"io"
	"log/slog"
)

const colorReset = "\033[0m"

// levelColor maps each slog level to the ANSI sequence used for the
// level tag in terminal output. Worker output files stay uncolored;
// this handler is for the daemon's own logs only.
func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m" // red
	case l >= slog.LevelWarn:
		return "\033[33m" // yellow
	case l >= slog.LevelInfo:
		return "\033[32m" // green
	default:
		return "\033[36m" // cyan
	}
}

// colorHandler prefixes each record's message with a colored level tag
// and delegates formatting to the wrapped slog.TextHandler.
type colorHandler struct {
	inner slog.Handler
}

func newColorHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return &colorHandler{inner: slog.NewTextHandler(w, opts)}
}

func (h *colorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	r.Message = levelColor(r.Level) + r.Level.String() + colorReset + "  " + r.Message
	return h.inner.Handle(ctx, r)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{inner: h.inner.WithGroup(name)}
}
