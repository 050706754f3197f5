// Package passthrough is the reranker used when no reranking backend is
// configured. It keeps the retrieval order with decaying synthetic
// scores, so the rest of the pipeline behaves identically.
package passthrough

import (
	"context"

	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
)

// Ensure Reranker implements the interface.
var _ driven.Reranker = (*Reranker)(nil)

// scoreDecay is the per-position score drop.
const scoreDecay = 0.05

// Reranker returns documents in their retrieval order.
type Reranker struct{}

// New creates a passthrough reranker.
func New() *Reranker {
	return &Reranker{}
}

// Rerank keeps the input order, best first, with decaying scores.
func (r *Reranker) Rerank(_ context.Context, _ string, documents []string, topN int) ([]driven.RerankResult, error) {
	n := len(documents)
	if topN > 0 && topN < n {
		n = topN
	}

	results := make([]driven.RerankResult, n)
	for i := 0; i < n; i++ {
		results[i] = driven.RerankResult{Index: i, Score: 1.0 - float64(i)*scoreDecay}
	}
	return results, nil
}

// ModelName identifies the passthrough strategy.
func (r *Reranker) ModelName() string {
	return "passthrough"
}

// Close is a no-op.
func (r *Reranker) Close() error {
	return nil
}
