package driven

import "context"

// RerankResult is a reranked document with a back-reference to its
// position in the input slice.
type RerankResult struct {
	// Index is the document's position in the input.
	Index int

	// Score is the relevance score, higher is more relevant.
	Score float64
}

// Reranker orders passages by relevance to a query.
//
// Implementations must degrade gracefully: if the backing model fails,
// Rerank returns the input order with decaying synthetic scores rather
// than an error. A reranking failure must never abort adjudication.
type Reranker interface {
	// Rerank returns the topN most relevant documents, best first.
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)

	// ModelName returns the reranking model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
