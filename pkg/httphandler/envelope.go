package httphandler

import (
	"net/http"
	"strings"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// writeData writes a success envelope whose code mirrors the status
func writeData[T any](w http.ResponseWriter, r *http.Request, status int, message string, data *T) error {
	return httpresponse.JSON(w, status, httprequest.Indent(r), schema.Envelope[T]{
		Code:    status,
		Message: message,
		Data:    data,
	})
}

// writeError writes a failure envelope. Errors which are not upload
// errors are reported as storage failures without their detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) error {
	uerr := schema.AsError(err, schema.StorageWriteFailure)
	message := uerr.Message
	if message == "" {
		message = string(uerr.Kind)
	}
	status := uerr.Status()
	return httpresponse.JSON(w, status, httprequest.Indent(r), schema.Envelope[schema.Error]{
		Code:    status,
		Message: message,
		Data:    uerr,
	})
}

// methodNotAllowed writes an envelope without data for a wrong method
func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow ...string) error {
	w.Header().Set("Allow", strings.Join(allow, ", "))
	return writeData[struct{}](w, r, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed", nil)
}
