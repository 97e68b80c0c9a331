package banner

import (
	"errors"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	InvalidRequest              Kind = "InvalidRequest"
	ConfigurationError          Kind = "ConfigurationError"
	UpstreamFetchError          Kind = "UpstreamFetchError"
	UpstreamGenerationError     Kind = "UpstreamGenerationError"
	StorageUploadError          Kind = "StorageUploadError"
	StorageURLError             Kind = "StorageUrlError"
	MetadataPersistError        Kind = "MetadataPersistError"
	GenerationProducedNoResults Kind = "GenerationProducedNoResults"
)

// Error is the structured failure returned by the pipeline. Message is what
// the caller sees; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status maps the kind to an HTTP status code.
func (e *Error) Status() int {
	if e.Kind == InvalidRequest {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// KindOf returns the kind of err, or "" when err is not a pipeline error.
func KindOf(err error) Kind {
	var bErr *Error
	if errors.As(err, &bErr) {
		return bErr.Kind
	}
	return ""
}
