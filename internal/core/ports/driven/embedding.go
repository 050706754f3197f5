package driven

import "context"

// EmbedResult is the outcome of a batch embedding call.
type EmbedResult struct {
	// Vectors are fixed-dimension embeddings in source text order,
	// even if the backing vendor reorders internally.
	Vectors [][]float32

	// Model is the embedding model used.
	Model string

	// Usage is the backend's token accounting.
	Usage Usage
}

// EmbeddingService generates vector embeddings from text.
// Dimensionality is constant for a given model and must match the
// vector store's configuration.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
type EmbeddingService interface {
	// EmbedTexts generates embeddings for multiple texts in one call.
	EmbedTexts(ctx context.Context, texts []string) (*EmbedResult, error)

	// EmbedQuery generates a single embedding for a retrieval query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size (e.g., 768, 1536).
	Dimensions() int

	// ModelName returns the embedding model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
