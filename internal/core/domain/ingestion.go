package domain

import "fmt"

// IngestionStatus tracks an upload through the pipeline.
// There are no other states: retries are caller-initiated re-uploads.
type IngestionStatus string

const (
	// StatusProcessing means the upload is in the pipeline.
	StatusProcessing IngestionStatus = "PROCESSING"

	// StatusIndexed means vectors were upserted and confirmed.
	StatusIndexed IngestionStatus = "INDEXED"

	// StatusFailed means a pipeline layer rejected the upload.
	StatusFailed IngestionStatus = "FAILED"
)

// Ingestion error codes surfaced to callers.
const (
	// CodeValidationError covers missing files, bad magic bytes and
	// oversized uploads.
	CodeValidationError = "VALIDATION_ERROR"

	// CodeBlockedFile means the content hash is on the blocklist.
	CodeBlockedFile = "BLOCKED_FILE"

	// CodeNotARulebook means classification rejected the document.
	CodeNotARulebook = "NOT_A_RULEBOOK"

	// CodeQuotaExceeded means the caller's daily ingestion quota is spent.
	CodeQuotaExceeded = "QUOTA_EXCEEDED"

	// CodeProcessingFailed wraps any other pipeline failure.
	CodeProcessingFailed = "PROCESSING_FAILED"
)

// IngestionError is a terminal pipeline failure with a machine-readable
// code. The caller marks the persisted ruleset FAILED and surfaces the
// message; the source file is cleaned up regardless.
type IngestionError struct {
	// Code is one of the Code* constants.
	Code string

	// Message is a human-readable reason suitable for sanitised display.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *IngestionError) Unwrap() error {
	return e.Err
}

// NewIngestionError creates a terminal pipeline error.
func NewIngestionError(code, message string) *IngestionError {
	return &IngestionError{Code: code, Message: message}
}

// WrapProcessingFailure wraps an unexpected error as PROCESSING_FAILED.
// Errors that are already IngestionErrors pass through unchanged.
func WrapProcessingFailure(err error) *IngestionError {
	var ie *IngestionError
	if AsIngestionError(err, &ie) {
		return ie
	}
	return &IngestionError{
		Code:    CodeProcessingFailed,
		Message: err.Error(),
		Err:     err,
	}
}

// IngestionResult summarises a successful indexing run.
type IngestionResult struct {
	// RulesetID identifies the indexed ruleset.
	RulesetID string

	// Namespace is the vector store partition written to.
	Namespace string

	// ChunkCount is the number of chunks produced.
	ChunkCount int

	// VectorCount is the namespace vector count after the upsert.
	VectorCount int

	// PageCount is the parsed page count.
	PageCount int

	// Title is the parsed document title, when available.
	Title string

	// Status is StatusIndexed on success.
	Status IngestionStatus
}
