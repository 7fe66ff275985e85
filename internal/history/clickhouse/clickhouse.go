package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/graydot/potter/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(dsn, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{dsn},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime64(6),
		event_type String,
		launch_id String,
		pid UInt32,
		build_id String,
		version String,
		detail String
	) ENGINE = MergeTree()
	ORDER BY (occurred_at, launch_id)`, s.table)
	if err := s.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, event_type, launch_id, pid, build_id, version, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		e.OccurredAt,
		string(e.Type),
		e.Record.LaunchID,
		uint32(e.Record.PID), // #nosec G115 pids fit in 32 bits
		e.Record.BuildID,
		e.Record.Version,
		e.Record.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}

	return nil
}

// Recent returns up to limit events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT occurred_at, event_type, launch_id, pid, build_id, version, detail
		FROM %s ORDER BY occurred_at DESC LIMIT %d`, s.table, limit)

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ClickHouse: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []history.Event
	for rows.Next() {
		var (
			occurredAt time.Time
			eventType  string
			launchID   string
			pid        uint32
			buildID    string
			version    string
			detail     string
		)
		if err := rows.Scan(&occurredAt, &eventType, &launchID, &pid, &buildID, &version, &detail); err != nil {
			return nil, err
		}
		out = append(out, history.Event{
			Type:       history.EventType(eventType),
			OccurredAt: occurredAt,
			Record: history.Record{
				LaunchID: launchID,
				PID:      int(pid),
				BuildID:  buildID,
				Version:  version,
				Detail:   detail,
			},
		})
	}
	return out, rows.Err()
}
