package driven

import (
	"context"

	"github.com/custodia-labs/arbiter/internal/core/domain"
)

// NamespaceStats reports the size of one vector store partition.
type NamespaceStats struct {
	// VectorCount is the number of vectors in the namespace.
	VectorCount int
}

// VectorStore provides namespace-partitioned similarity search.
// A namespace is an opaque partition key, in practice one per indexed
// ruleset; queries never cross namespaces implicitly.
type VectorStore interface {
	// Upsert writes records into the namespace, overwriting existing ids.
	// Returns the number of records written.
	Upsert(ctx context.Context, records []domain.VectorRecord, namespace string) (int, error)

	// Query returns up to topK matches ranked descending by similarity.
	// The optional filter restricts matches by metadata equality.
	Query(ctx context.Context, vector []float32, topK int, namespace string, filter map[string]any) ([]domain.VectorMatch, error)

	// DeleteByIDs removes specific records from the namespace.
	DeleteByIDs(ctx context.Context, ids []string, namespace string) error

	// DeleteNamespace removes the whole partition.
	DeleteNamespace(ctx context.Context, namespace string) error

	// NamespaceStats reports the namespace's vector count.
	NamespaceStats(ctx context.Context, namespace string) (*NamespaceStats, error)

	// Close releases resources.
	Close() error
}
