package driving

import (
	"context"

	"github.com/custodia-labs/arbiter/internal/core/domain"
)

// IngestionRequest describes one uploaded rulebook file.
type IngestionRequest struct {
	// FilePath is the uploaded file on local disk. The pipeline destroys
	// it on exit, success or failure.
	FilePath string

	// UserID owns the upload and determines the default namespace.
	UserID string

	// SessionID is the uploading session, when applicable.
	SessionID string

	// RulesetID identifies the ruleset being (re)indexed.
	RulesetID string

	// GameName is the human-readable game title.
	GameName string

	// SourceType is the ruleset's place in the source hierarchy.
	SourceType domain.SourceType

	// IsOfficial marks publisher-provided content.
	IsOfficial bool

	// Namespace overrides the default user namespace when set
	// (e.g. an official/public namespace).
	Namespace string

	// Blocklist is the caller-supplied set of banned SHA-256 hashes,
	// hex encoded. The pipeline does not own or persist this set.
	Blocklist map[string]struct{}
}

// IngestionService turns untrusted uploads into indexed vectors.
type IngestionService interface {
	// Ingest validates, classifies and indexes the file. Failures are
	// *domain.IngestionError; the source file is destroyed regardless.
	Ingest(ctx context.Context, req IngestionRequest) (*domain.IngestionResult, error)
}
