package driven

import "context"

// Message roles for completion requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ResponseFormatJSON asks the backend for a strict JSON object reply.
const ResponseFormatJSON = "json_object"

// Message is a single message in a completion conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant.
	Role string

	// Content is the message text.
	Content string
}

// CompletionOptions configures a completion request.
type CompletionOptions struct {
	// Model overrides the adapter's default model when non-empty.
	Model string

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64

	// MaxTokens caps the generated length. Zero means adapter default.
	MaxTokens int

	// ResponseFormat requests a structured reply, e.g. ResponseFormatJSON.
	// Empty means plain text.
	ResponseFormat string
}

// Usage reports token accounting from the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResult is a completed generation.
type CompletionResult struct {
	// Content is the generated text.
	Content string

	// Model is the model that produced the content.
	Model string

	// Usage is the backend's token accounting.
	Usage Usage

	// FinishReason is the backend's stop reason, e.g. "stop", "length".
	FinishReason string
}

// CompletionService produces language-model completions.
// Transport and auth failures surface as *domain.ProviderError.
//
// Implementations may include:
//   - OpenAI (chat completions)
//   - Ollama (local models)
type CompletionService interface {
	// Complete produces a single completion for the conversation.
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (*CompletionResult, error)

	// Stream yields incremental text chunks on the returned channel.
	// The channel is closed when generation finishes or ctx is cancelled;
	// cancellation is caller-controlled (stop consuming or cancel ctx).
	Stream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan string, error)

	// ModelName returns the default model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
