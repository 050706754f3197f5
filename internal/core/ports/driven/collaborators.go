package driven

import (
	"context"

	"github.com/custodia-labs/arbiter/internal/core/domain"
)

// NamespaceResolver maps a session to its ready-to-query namespaces.
// An empty result is a hard precondition failure for adjudication; the
// caller signals "no indexed content" before invoking the engine.
type NamespaceResolver interface {
	// Resolve returns namespaces for the session, optionally restricted
	// to specific ruleset ids.
	Resolve(ctx context.Context, sessionID string, rulesetIDs []string) ([]string, error)
}

// AuditSink records verdicts for later review. Persisting a verdict is
// entirely the caller's concern; the engine never writes here itself.
type AuditSink interface {
	// Record stores a verdict against its session.
	Record(ctx context.Context, sessionID string, verdict *domain.Verdict) error

	// Close releases resources.
	Close() error
}

// QuotaChecker enforces per-user daily ingestion limits.
type QuotaChecker interface {
	// Allow reports whether the user may ingest another document today,
	// consuming one unit of quota when it returns true.
	Allow(ctx context.Context, userID string) (bool, error)
}
