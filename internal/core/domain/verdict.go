package domain

// Citation references a rulebook passage backing a verdict claim.
type Citation struct {
	// Source is the game or rulebook name.
	Source string `json:"source"`

	// Page is the 1-based source page, 0 when unknown.
	Page int `json:"page"`

	// Section is the header path of the cited passage.
	Section string `json:"section"`

	// Snippet is a short excerpt (at most 300 characters).
	Snippet string `json:"snippet"`

	// IsOfficial marks publisher-provided content.
	IsOfficial bool `json:"is_official"`
}

// Conflict describes competing rule sources addressing the same topic.
type Conflict struct {
	// Description names the section and the competing source types.
	Description string `json:"description"`

	// Resolution states the standing tie-break rule applied.
	Resolution string `json:"resolution"`
}

// Verdict is the adjudication result for one rules question.
// Verdicts are constructed fresh per query and never persisted by the
// engine itself; the audit sink is the caller's concern.
type Verdict struct {
	// Verdict is the ruling text.
	Verdict string `json:"verdict"`

	// ReasoningChain explains how the ruling follows from the sources.
	ReasoningChain string `json:"reasoning_chain,omitempty"`

	// Confidence is clamped to [0, 1].
	Confidence float64 `json:"confidence"`

	// ConfidenceReason explains the confidence band.
	ConfidenceReason string `json:"confidence_reason,omitempty"`

	// Citations back each claim with page and section references.
	Citations []Citation `json:"citations"`

	// Conflicts lists detected source-hierarchy disagreements.
	Conflicts []Conflict `json:"conflicts,omitempty"`

	// FollowUpHint suggests a clarifying question, when useful.
	FollowUpHint string `json:"follow_up_hint,omitempty"`

	// QueryID uniquely identifies this adjudication.
	QueryID string `json:"query_id"`

	// LatencyMS is wall-clock time from pipeline entry to construction.
	LatencyMS int64 `json:"latency_ms"`

	// ExpandedQuery is the retrieval query actually used.
	ExpandedQuery string `json:"expanded_query"`
}

// ClampConfidence bounds a model-reported confidence to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ExpandedQuery is the query-optimizer output used for retrieval.
// On expansion failure the engine falls back to the original query with
// empty keyword and sub-query lists.
type ExpandedQuery struct {
	// ExpandedQuery is the rewritten retrieval query.
	ExpandedQuery string `json:"expanded_query"`

	// Keywords are salient terms extracted from the question.
	Keywords []string `json:"keywords"`

	// SubQueries are decomposed follow-up retrieval queries.
	SubQueries []string `json:"sub_queries,omitempty"`
}
