package domain

// Chunk is a unit of retrievable text produced by the chunker.
// Chunks are immutable once indexed; reingestion replaces the full set
// for a ruleset rather than updating chunks in place.
type Chunk struct {
	// Text is the chunk content with the header path prepended.
	Text string

	// HeaderPath is the hierarchical location within the rulebook.
	HeaderPath string

	// PageNumber is the 1-based source page, when known.
	PageNumber *int

	// SectionType classifies the originating section.
	SectionType SectionType

	// ChunkIndex is the 0-based sequential position, assigned only
	// after all splitting, merging and overlap steps.
	ChunkIndex int

	// TokenEstimate is the estimated token count of Text.
	TokenEstimate int
}

// EstimateTokens returns the estimated token count for text.
// The heuristic is fixed at character_count/4 with a floor of 1 and is
// intentionally not a real tokenizer: chunk counts must be deterministic.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}
