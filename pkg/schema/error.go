package schema

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Kind classifies every failure that crosses the upload boundary.
type Kind string

// Error is a structured upload failure, carrying enough context
// (upload key and chunk index) for a caller to retry precisely.
type Error struct {
	Kind      Kind   `json:"kind"`
	UploadKey string `json:"uploadKey,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Message   string `json:"-"`
	Err       error  `json:"-"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	MalformedRequest    Kind = "MalformedRequest"
	ChunkTooLarge       Kind = "ChunkTooLarge"
	TotalCountMismatch  Kind = "TotalCountMismatch"
	IncompleteUpload    Kind = "IncompleteUpload"
	StorageWriteFailure Kind = "StorageWriteFailure"
	StorageReadFailure  Kind = "StorageReadFailure"
	MergeInProgress     Kind = "MergeInProgress"
	NotFound            Kind = "NotFound"
	ChunkUploadFailed   Kind = "ChunkUploadFailed"
	Unauthorized        Kind = "Unauthorized"
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewError returns an error of the given kind with a formatted message
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithKey sets the upload key and returns the error
func (e *Error) WithKey(key string) *Error {
	e.UploadKey = key
	return e
}

// WithIndex sets the chunk index and returns the error
func (e *Error) WithIndex(index int) *Error {
	e.Index = &index
	return e
}

// Wrap sets the underlying cause and returns the error
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// Status returns the HTTP status code for the error kind
func (e *Error) Status() int {
	return e.Kind.Status()
}

// Retryable reports whether repeating the same operation may succeed
func (e *Error) Retryable() bool {
	switch e.Kind {
	case IncompleteUpload, StorageWriteFailure, StorageReadFailure, MergeInProgress:
		return true
	default:
		return false
	}
}

// Status returns the HTTP status code for a kind
func (k Kind) Status() int {
	switch k {
	case MalformedRequest, ChunkTooLarge, TotalCountMismatch, IncompleteUpload:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case MergeInProgress:
		return http.StatusConflict
	case ChunkUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKind returns the kind of err, or the empty kind if err
// is not an upload error
func ErrorKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError returns err as an upload error, wrapping anything else
// with the fallback kind
func AsError(err error, fallback Kind) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: fallback, Err: err}
}
