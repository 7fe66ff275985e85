package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/graydot/potter/internal/history"
)

// Sink writes launch history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	// Handle sqlite:// prefix
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	// Append-only audit table. The busy timeout keeps concurrent launches
	// from failing on the shared database file.
	stmts := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS launch_history(
			occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
			event_type TEXT NOT NULL,
			launch_id TEXT NOT NULL,
			pid INTEGER NOT NULL,
			build_id TEXT NOT NULL,
			version TEXT,
			detail TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_launch_history_occurred ON launch_history(occurred_at);`,
		`CREATE INDEX IF NOT EXISTS idx_launch_history_launch ON launch_history(launch_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	occur := e.OccurredAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO launch_history(occurred_at, event_type, launch_id, pid, build_id, version, detail)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		occur, string(e.Type), rec.LaunchID, rec.PID, rec.BuildID, rec.Version, rec.Detail)
	return err
}

// Recent returns up to limit events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, event_type, launch_id, pid, build_id, version, detail
		FROM launch_history ORDER BY occurred_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []history.Event
	for rows.Next() {
		var e history.Event
		var typ string
		var version, detail sql.NullString
		if err := rows.Scan(&e.OccurredAt, &typ, &e.Record.LaunchID, &e.Record.PID, &e.Record.BuildID, &version, &detail); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		e.Record.Version = version.String
		e.Record.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
