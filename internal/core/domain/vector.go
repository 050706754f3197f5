package domain

import "fmt"

// VectorMetadata is the payload attached to every stored vector.
// The text snippet is truncated at indexing time; the full chunk text
// is never stored in the vector store.
type VectorMetadata struct {
	// Text is the chunk text snippet (truncated to the metadata limit).
	Text string `json:"text"`

	// Page is the 1-based source page, 0 when unknown.
	Page int `json:"page"`

	// SectionHeader is the chunk's header path.
	SectionHeader string `json:"section_header"`

	// SourceType is the ruleset's place in the source hierarchy.
	SourceType SourceType `json:"source_type"`

	// SourcePriority is the numeric rank of SourceType.
	SourcePriority int `json:"source_priority"`

	// RulesetID identifies the originating ruleset.
	RulesetID string `json:"ruleset_id"`

	// SessionID identifies the uploading session, when applicable.
	SessionID string `json:"session_id,omitempty"`

	// GameName is the human-readable game title.
	GameName string `json:"game_name"`

	// IsOfficial marks publisher-provided content.
	IsOfficial bool `json:"is_official"`
}

// VectorRecord is a chunk embedding plus metadata being upserted.
type VectorRecord struct {
	// ID is the deterministic record identifier. Re-ingestion of the
	// same ruleset overwrites rather than duplicates.
	ID string

	// Values is the embedding vector.
	Values []float32

	// Metadata is the retrieval payload.
	Metadata VectorMetadata
}

// VectorMatch is a similarity query hit.
type VectorMatch struct {
	// ID is the matched record identifier.
	ID string

	// Score is the similarity score, higher is closer.
	Score float64

	// Metadata is the stored retrieval payload.
	Metadata VectorMetadata
}

// VectorID derives the deterministic record id for a chunk, so that
// re-ingestion of a ruleset overwrites its previous vectors.
func VectorID(rulesetID string, chunkIndex int) string {
	return fmt.Sprintf("%s-%d", rulesetID, chunkIndex)
}
