package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/custodia-labs/arbiter/internal/core/domain"
	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
	"github.com/custodia-labs/arbiter/internal/logger"
)

// expansionMaxTokens bounds the query-optimizer call; expansion is an
// auxiliary step and never worth a long generation.
const expansionMaxTokens = 300

// expandQuery rewrites the question for retrieval via the completion
// capability. Expansion failure must never abort the pipeline: any call
// or parse failure falls back silently to the original query with empty
// keyword and sub-query lists.
func expandQuery(ctx context.Context, llm driven.CompletionService, query string) domain.ExpandedQuery {
	fallback := domain.ExpandedQuery{
		ExpandedQuery: query,
		Keywords:      []string{},
		SubQueries:    []string{},
	}

	if llm == nil {
		return fallback
	}

	result, err := llm.Complete(ctx, []driven.Message{
		{Role: driven.RoleSystem, Content: queryOptimizerPrompt},
		{Role: driven.RoleUser, Content: query},
	}, driven.CompletionOptions{
		Temperature:    0.1,
		MaxTokens:      expansionMaxTokens,
		ResponseFormat: driven.ResponseFormatJSON,
	})
	if err != nil {
		logger.Warn("Query expansion failed: %v (using original query)", err)
		return fallback
	}

	var expanded domain.ExpandedQuery
	if err := json.Unmarshal([]byte(extractJSON(result.Content)), &expanded); err != nil {
		logger.Warn("Query expansion returned malformed JSON (using original query)")
		return fallback
	}

	if strings.TrimSpace(expanded.ExpandedQuery) == "" {
		expanded.ExpandedQuery = query
	}
	if expanded.Keywords == nil {
		expanded.Keywords = []string{}
	}
	if expanded.SubQueries == nil {
		expanded.SubQueries = []string{}
	}

	logger.Debug("Expanded query: %q (%d sub-queries)", expanded.ExpandedQuery, len(expanded.SubQueries))
	return expanded
}

// extractJSON trims prose and code fences around a JSON object. Models
// occasionally wrap JSON despite the response format request.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
