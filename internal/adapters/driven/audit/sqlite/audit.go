// Package sqlite records adjudication verdicts in a local SQLite
// database so past rulings can be reviewed per session.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
)

// Ensure AuditSink implements the interface.
var _ driven.AuditSink = (*AuditSink)(nil)

// Entry is one recorded verdict with its audit envelope.
type Entry struct {
	SessionID  string
	QueryID    string
	Confidence float64
	LatencyMS  int64
	RecordedAt time.Time
	Verdict    *domain.Verdict
}

// AuditSink stores verdicts in a local SQLite database.
type AuditSink struct {
	db   *sql.DB
	path string
}

// New creates an audit sink at the specified data directory.
// If dataDir is empty, defaults to ~/.arbiter/data/audit.db.
func New(dataDir string) (*AuditSink, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".arbiter", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "audit.db")

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &AuditSink{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// migrate creates the verdicts table.
func (s *AuditSink) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS verdicts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			query_id TEXT NOT NULL,
			confidence REAL NOT NULL,
			latency_ms INTEGER NOT NULL,
			verdict_json TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_verdicts_session ON verdicts(session_id, recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("creating verdicts table: %w", err)
	}
	return nil
}

// Record stores a verdict against its session.
func (s *AuditSink) Record(ctx context.Context, sessionID string, verdict *domain.Verdict) error {
	if verdict == nil {
		return fmt.Errorf("recording verdict: nil verdict")
	}

	verdictJSON, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("marshalling verdict: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verdicts (session_id, query_id, confidence, latency_ms, verdict_json, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sessionID, verdict.QueryID, verdict.Confidence, verdict.LatencyMS,
		string(verdictJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving verdict %s: %w", verdict.QueryID, err)
	}
	return nil
}

// Recent returns the session's most recent verdicts, newest first.
func (s *AuditSink) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, query_id, confidence, latency_ms, verdict_json, recorded_at
		FROM verdicts
		WHERE session_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying verdicts: %w", err)
	}
	defer rows.Close()

	var entries []Entry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e Entry
		var verdictJSON string
		if err := rows.Scan(&e.SessionID, &e.QueryID, &e.Confidence,
			&e.LatencyMS, &verdictJSON, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning verdict: %w", err)
		}

		var v domain.Verdict
		if err := json.Unmarshal([]byte(verdictJSON), &v); err != nil {
			return nil, fmt.Errorf("unmarshaling verdict %s: %w", e.QueryID, err)
		}
		e.Verdict = &v
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating verdicts: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *AuditSink) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *AuditSink) Path() string {
	return s.path
}
