package driven

import (
	"context"

	"github.com/custodia-labs/arbiter/internal/core/domain"
)

// DocumentParser extracts ordered hierarchical sections from a file.
// Parse failures are terminal for ingestion; callers must not retry
// internally.
type DocumentParser interface {
	// Parse reads the file and returns its structured content.
	// maxPages limits how far into the document to read; zero means all.
	Parse(ctx context.Context, path string, maxPages int) (*domain.ParsedDocument, error)
}
