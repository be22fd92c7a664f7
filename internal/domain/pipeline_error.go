package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification of a pipeline failure.
// Kinds originate at the collaborator that raised the failure; higher layers
// never re-derive a kind from message text.
type ErrorKind string

// Possible error kinds surfaced by the identification pipeline.
const (
	// ErrorKindInvalidURL means the caller input matches a known-unsupported
	// URL shape. Rejected synchronously at submission time.
	ErrorKindInvalidURL ErrorKind = "INVALID_URL"

	// ErrorKindContentNotFound means the media item does not exist or has
	// been deleted.
	ErrorKindContentNotFound ErrorKind = "CONTENT_NOT_FOUND"

	// ErrorKindPrivateAccount means the extractor could not access the
	// content after exhausting its attempts, most likely a private account.
	ErrorKindPrivateAccount ErrorKind = "PRIVATE_ACCOUNT"

	// ErrorKindRateLimited means a collaborator signalled throttling.
	ErrorKindRateLimited ErrorKind = "RATE_LIMIT"

	// ErrorKindNetwork means a transport-level failure talking to a
	// collaborator.
	ErrorKindNetwork ErrorKind = "NETWORK_ERROR"

	// ErrorKindAuth means the recognition collaborator rejected our
	// credentials.
	ErrorKindAuth ErrorKind = "AUTH_ERROR"

	// ErrorKindDownload means the extraction collaborator failed for an
	// unclassified reason.
	ErrorKindDownload ErrorKind = "DOWNLOAD_ERROR"

	// ErrorKindNoSongFound means the recognition collaborator returned no
	// match. This is a terminal success outcome, not a failure.
	ErrorKindNoSongFound ErrorKind = "NO_SONG_FOUND"

	// ErrorKindProcessing is the default kind for any unclassified failure.
	ErrorKindProcessing ErrorKind = "PROCESSING_ERROR"
)

// Retryable reports whether a bounded number of re-attempts may succeed for
// failures of this kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindRateLimited, ErrorKindNetwork, ErrorKindDownload, ErrorKindProcessing:
		return true
	default:
		return false
	}
}

// PipelineError is a structured failure raised by the extraction or
// recognition collaborators. It carries a discriminated kind from the point
// of origin plus a human-readable message, so classification is deterministic
// and never requires parsing message text.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a PipelineError with the given kind and message.
func NewPipelineError(kind ErrorKind, message string) *PipelineError {
	return &PipelineError{Kind: kind, Message: message}
}

// WrapPipelineError creates a PipelineError wrapping an underlying cause.
func WrapPipelineError(kind ErrorKind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

// Classify maps any error to its (kind, retryable) pair. Errors that are not
// PipelineErrors fall back to ErrorKindProcessing, which is retryable with a
// bounded ceiling.
func Classify(err error) (ErrorKind, bool) {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Kind, perr.Kind.Retryable()
	}
	return ErrorKindProcessing, ErrorKindProcessing.Retryable()
}

// ErrorMessage extracts the human-readable message from an error. For
// PipelineErrors this is the classified message; for anything else it is the
// error text itself.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}
