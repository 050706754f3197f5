// Package sqlite enforces per-user daily ingestion quotas with a
// counter persisted in a local SQLite database. The counter survives
// process restarts, so the limit holds across CLI invocations.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
)

// Ensure QuotaChecker implements the interface.
var _ driven.QuotaChecker = (*QuotaChecker)(nil)

// DefaultDailyLimit is the number of ingestions a user may run per
// UTC day when no explicit limit is configured.
const DefaultDailyLimit = 20

// QuotaChecker tracks ingestion counts per user and UTC day.
type QuotaChecker struct {
	db         *sql.DB
	path       string
	dailyLimit int
	now        func() time.Time
}

// Option configures a QuotaChecker.
type Option func(*QuotaChecker)

// WithDailyLimit overrides the default per-day ingestion limit.
func WithDailyLimit(limit int) Option {
	return func(q *QuotaChecker) {
		if limit > 0 {
			q.dailyLimit = limit
		}
	}
}

// withClock injects a clock for day-boundary tests.
func withClock(now func() time.Time) Option {
	return func(q *QuotaChecker) {
		q.now = now
	}
}

// New creates a quota checker at the specified data directory.
// If dataDir is empty, defaults to ~/.arbiter/data/quota.db.
func New(dataDir string, opts ...Option) (*QuotaChecker, error) {
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

	dbPath := filepath.Join(dataDir, "quota.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	q := &QuotaChecker{
		db:         db,
		path:       dbPath,
		dailyLimit: DefaultDailyLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return q, nil
}

// migrate creates the quota table.
func (q *QuotaChecker) migrate() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS ingestion_quota (
			user_id TEXT NOT NULL,
			day TEXT NOT NULL,
			used INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating quota table: %w", err)
	}
	return nil
}

// Allow reports whether the user may ingest another document today,
// consuming one unit of quota when it returns true. The conditional
// update makes the check-and-increment atomic under concurrent callers.
func (q *QuotaChecker) Allow(ctx context.Context, userID string) (bool, error) {
	day := q.now().UTC().Format("2006-01-02")

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO ingestion_quota (user_id, day, used) VALUES (?, ?, 0)
	`, userID, day); err != nil {
		return false, fmt.Errorf("initialising quota row: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE ingestion_quota SET used = used + 1
		WHERE user_id = ? AND day = ? AND used < ?
	`, userID, day, q.dailyLimit)
	if err != nil {
		return false, fmt.Errorf("incrementing quota: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return affected > 0, nil
}

// Used returns the user's consumption for the current UTC day.
func (q *QuotaChecker) Used(ctx context.Context, userID string) (int, error) {
	day := q.now().UTC().Format("2006-01-02")

	var used int
	err := q.db.QueryRowContext(ctx, `
		SELECT used FROM ingestion_quota WHERE user_id = ? AND day = ?
	`, userID, day).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading quota: %w", err)
	}
	return used, nil
}

// Limit returns the configured daily limit.
func (q *QuotaChecker) Limit() int {
	return q.dailyLimit
}

// Close closes the database connection.
func (q *QuotaChecker) Close() error {
	return q.db.Close()
}
