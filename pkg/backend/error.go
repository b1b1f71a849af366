package backend

import (
	"context"
	"errors"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	gcerrors "gocloud.dev/gcerrors"
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// storeErr translates a non-nil go-cloud blob error into an upload error.
// Reads which find nothing are NotFound; everything else becomes the given
// storage failure kind.
func storeErr(err error, kind schema.Kind, format string, args ...any) *schema.Error {
	var e *schema.Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return schema.NewError(kind, format, args...).Wrap(err)
	}
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return schema.NewError(schema.NotFound, format, args...).Wrap(err)
	default:
		return schema.NewError(kind, format, args...).Wrap(err)
	}
}

// isNotFound reports whether a go-cloud error means the blob does not exist
func isNotFound(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}

// isExists reports whether a conditional write failed because the blob exists
func isExists(err error) bool {
	switch gcerrors.Code(err) {
	case gcerrors.FailedPrecondition, gcerrors.AlreadyExists:
		return true
	default:
		return false
	}
}
