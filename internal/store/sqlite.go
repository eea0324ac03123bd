package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS segments (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT    NOT NULL,
	text         TEXT    NOT NULL,
	confidence   REAL    NOT NULL,
	device_id    TEXT    NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	created_at   REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segments_session ON segments(session_id, timestamp_ms);
`

// SQLite is a [Store] backed by a local SQLite database file, using the
// pure-Go driver so no C toolchain is needed.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path with WAL
// journalling, creating parent directories and the schema as needed.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create database dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// PingContext verifies the database connection. Used by readiness probes.
func (s *SQLite) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Add persists a segment and returns it with ID and CreatedAt set.
func (s *SQLite) Add(ctx context.Context, seg Segment) (Segment, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO segments (session_id, text, confidence, device_id, timestamp_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, seg.SessionID, seg.Text, seg.Confidence, seg.DeviceID, seg.TimestampMS, unixFloat(now))
	if err != nil {
		return Segment{}, fmt.Errorf("store: insert segment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Segment{}, fmt.Errorf("store: last insert id: %w", err)
	}

	seg.ID = id
	seg.CreatedAt = now
	return seg, nil
}

// BySession returns all segments of a session ordered by capture timestamp.
func (s *SQLite) BySession(ctx context.Context, sessionID string) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, text, confidence, device_id, timestamp_ms, created_at
		FROM segments
		WHERE session_id = ?
		ORDER BY timestamp_ms ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: query segments: %w", err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		var seg Segment
		var createdAt float64
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.Text, &seg.Confidence,
			&seg.DeviceID, &seg.TimestampMS, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan segment: %w", err)
		}
		seg.CreatedAt = timeFromUnix(createdAt)
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Ensure SQLite implements Store at compile time.
var _ Store = (*SQLite)(nil)
