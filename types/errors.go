package types

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every failure leaving the service layer matches exactly one of
// them with errors.Is.
var (
	ErrExtraction        = errors.New("extraction failed")
	ErrUnsupportedType   = fmt.Errorf("%w: unsupported file type", ErrExtraction)
	ErrChunking          = errors.New("chunking failed")
	ErrEmbedding         = errors.New("embedding failed")
	ErrGeneration        = errors.New("generation failed")
	ErrStorage           = errors.New("storage failed")
	ErrDuplicateFile     = errors.New("file already uploaded")
	ErrNoValidDocuments  = errors.New("no valid documents")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidInput      = errors.New("invalid input")
)

// KnowledgeError keeps the failing operation, its kind and the underlying
// cause together.
type KnowledgeError struct {
	Op   string
	Kind error
	Err  error
}

func NewError(op string, kind, err error) *KnowledgeError {
	return &KnowledgeError{Op: op, Kind: kind, Err: err}
}

func (e *KnowledgeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *KnowledgeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether the caller may retry the operation later.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrEmbedding) ||
		errors.Is(err, ErrGeneration) ||
		errors.Is(err, ErrStorage) ||
		errors.Is(err, context.DeadlineExceeded)
}
