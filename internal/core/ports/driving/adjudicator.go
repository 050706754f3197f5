package driving

import (
	"context"

	"github.com/custodia-labs/arbiter/internal/core/domain"
)

// AdjudicationRequest is one rules question against indexed namespaces.
type AdjudicationRequest struct {
	// Question is the raw natural-language rules question.
	Question string

	// Namespaces are the vector store partitions to search.
	// Must be non-empty.
	Namespaces []string

	// GameName labels citations when metadata lacks a game name.
	GameName string
}

// AdjudicationService answers rules questions with cited verdicts.
type AdjudicationService interface {
	// Adjudicate runs the full query pipeline and returns a verdict.
	// Returns domain.ErrNoNamespaces when the request names none.
	Adjudicate(ctx context.Context, req AdjudicationRequest) (*domain.Verdict, error)
}
