// Package audit is a SUPPLEMENTED FEATURE: spec.md's event bus (§4.4) is
// purely in-memory and process-lifetime, so a client that wasn't
// subscribed at the time of an event has no way to learn it happened
// after the fact. This package adds an additive, append-only SQLite log
// of the same eventbus.Event stream, for post-hoc "what happened to my
// sessions" queries — it never gates or replaces anything spec.md
// requires of the in-memory bus.
//
// Grounded on internal/db/store.go: same modernc.org/sqlite driver, same
// WAL + busy_timeout DSN pragmas, same single-connection pool (SQLite
// doesn't benefit from Go-level connection pooling for a local file).
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amux-dev/amux/internal/eventbus"
)

// Store appends eventbus.Event records to a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod audit db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one event. Failures are logged by the caller, not fatal
// to the daemon: the audit log is a convenience index, never a dependency
// of the live session-multiplexing path.
func (s *Store) Record(ctx context.Context, ev eventbus.Event) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO session_events(seq, kind, session_id, repo_id, branch, name, exit_code, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, ev.Seq, string(ev.Kind), ev.SessionID, ev.RepoID, ev.Branch, ev.Name, nullableInt(ev.ExitCode), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Record is a Record-shaped entry read back from storage.
type Record struct {
	Seq        uint64
	Kind       string
	SessionID  string
	RepoID     string
	Branch     string
	Name       string
	ExitCode   *int
	RecordedAt time.Time
}

// ListBySession returns every recorded event for sessionID, oldest first.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, kind, session_id, repo_id, branch, name, exit_code, recorded_at
FROM session_events
WHERE session_id = ?
ORDER BY id ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var exitCode sql.NullInt64
		var recordedAt string
		if err := rows.Scan(&r.Seq, &r.Kind, &r.SessionID, &r.RepoID, &r.Branch, &r.Name, &exitCode, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		if exitCode.Valid {
			v := int(exitCode.Int64)
			r.ExitCode = &v
		}
		r.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Tail returns the most recent n events across all sessions, oldest first.
func (s *Store) Tail(ctx context.Context, n int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, kind, session_id, repo_id, branch, name, exit_code, recorded_at
FROM session_events
ORDER BY id DESC
LIMIT ?
`, n)
	if err != nil {
		return nil, fmt.Errorf("tail session events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var exitCode sql.NullInt64
		var recordedAt string
		if err := rows.Scan(&r.Seq, &r.Kind, &r.SessionID, &r.RepoID, &r.Branch, &r.Name, &exitCode, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		if exitCode.Valid {
			v := int(exitCode.Int64)
			r.ExitCode = &v
		}
		r.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		out = append([]Record{r}, out...) // reverse DESC scan back to chronological order
	}
	return out, rows.Err()
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// Subscribe drains bus events into the store until ctx is canceled.
// Intended to run in its own goroutine for the lifetime of the daemon.
func Subscribe(ctx context.Context, bus *eventbus.Bus, store *Store) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = store.Record(ctx, ev)
		}
	}
}
