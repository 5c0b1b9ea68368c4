package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/scoutd/scoutd/internal/monitor"
)

// Sink exports worker log lines to ClickHouse using the official
// ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e monitor.LogEntry) error {
	query := fmt.Sprintf(`INSERT INTO %s (run_id, occurred_at, level, message) VALUES (?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		e.RunID,
		e.Timestamp,
		string(e.Level),
		e.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to insert log line into ClickHouse: %w", err)
	}
	return nil
}
