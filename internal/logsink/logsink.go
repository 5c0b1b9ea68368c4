package logsink

import (
	"context"

	"github.com/scoutd/scoutd/internal/monitor"
)

// Sink is a destination for classified worker log lines (analytics or
// CRM systems). Implementations must be safe for concurrent use; the
// supervisor treats Send as fire-and-forget and only logs failures.
type Sink interface {
	Send(ctx context.Context, e monitor.LogEntry) error
}
