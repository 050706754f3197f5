package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoNamespaces indicates adjudication was attempted with zero
	// namespaces. The caller must signal "no indexed content" to the end
	// user before invoking the engine.
	ErrNoNamespaces = errors.New("no namespaces to query")

	// ErrUnknownProvider indicates a configured provider name has no
	// registered implementation. Fatal at first registry resolution.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrEmptyNamespace indicates a namespace holds no vectors.
	ErrEmptyNamespace = errors.New("namespace is empty")
)

// ProviderError is a transport or authentication failure from a
// capability backend. Primary-capability failures propagate; auxiliary
// failures (expansion, reranking) are recovered with documented fallbacks.
type ProviderError struct {
	// Provider names the backing implementation, e.g. "openai".
	Provider string

	// Op is the failing operation, e.g. "complete", "embed".
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps a backend failure with provider context.
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// AsIngestionError reports whether err is (or wraps) an IngestionError,
// assigning it to target when it does.
func AsIngestionError(err error, target **IngestionError) bool {
	return errors.As(err, target)
}
