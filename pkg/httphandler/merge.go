package httphandler

import (
	"net/http"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	jsonschema "github.com/mutablelogic/go-server/pkg/jsonschema"
	openapi "github.com/mutablelogic/go-server/pkg/openapi"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// maxRequestSize bounds JSON request bodies
const maxRequestSize = 16 << 10

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /upload/merge
// POST reassembles the staged chunks of a file, with a JSON body of
// {fileName, chunks}, and returns the published artifact.
func MergeHandler(mgr *manager.Manager, scope ScopeFunc) (string, httprequest.PathItem) {
	return relPath(schema.MergePath), newPathItem(
		httprequest.NewPathItem("Merge", "Reassemble the staged chunks of a file", schema.SchemaName).
			Post(func(w http.ResponseWriter, r *http.Request) {
				_ = mergePost(w, r, mgr, scope)
			}, "Merge chunks",
				openapi.WithDescription("Merge the staged chunks of a file into a published artifact"),
				openapi.WithJSONRequest(jsonschema.MustFor[schema.MergeRequest]()),
			),
		http.MethodPost,
	)
}

// Path: /upload/abort
// POST discards the staged chunks of a file, with a JSON body of {fileName}.
func AbortHandler(mgr *manager.Manager, scope ScopeFunc) (string, httprequest.PathItem) {
	return relPath(schema.AbortPath), newPathItem(
		httprequest.NewPathItem("Abort", "Abandon an upload", schema.SchemaName).
			Post(func(w http.ResponseWriter, r *http.Request) {
				_ = abortPost(w, r, mgr, scope)
			}, "Abort upload",
				openapi.WithDescription("Abandon an upload and discard its staged chunks"),
				openapi.WithJSONRequest(jsonschema.MustFor[schema.AbortRequest]()),
			),
		http.MethodPost,
	)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func mergePost(w http.ResponseWriter, r *http.Request, mgr *manager.Manager, scope ScopeFunc) error {
	caller, err := scope(r)
	if err != nil {
		return writeError(w, r, err)
	}

	// Read request
	var req schema.MergeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	if err := httprequest.Read(r, &req); err != nil {
		return writeError(w, r, schema.AsError(err, schema.MalformedRequest))
	}

	// Merge
	artifact, err := mgr.Merge(r.Context(), caller, req)
	if err != nil {
		return writeError(w, r, err)
	}

	return writeData(w, r, http.StatusOK, "file merged", artifact)
}

func abortPost(w http.ResponseWriter, r *http.Request, mgr *manager.Manager, scope ScopeFunc) error {
	caller, err := scope(r)
	if err != nil {
		return writeError(w, r, err)
	}

	// Read request
	var req schema.AbortRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	if err := httprequest.Read(r, &req); err != nil {
		return writeError(w, r, schema.AsError(err, schema.MalformedRequest))
	}

	// Abort
	if _, err := mgr.Abort(r.Context(), caller, req); err != nil {
		return writeError(w, r, err)
	}

	return writeData[struct{}](w, r, http.StatusOK, "upload aborted", nil)
}
