package httphandler

import (
	"errors"
	"net/http"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	openapi "github.com/mutablelogic/go-server/pkg/openapi"
	types "github.com/mutablelogic/go-server/pkg/types"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// formOverhead is the allowance for multipart boundaries and text
// fields on top of the chunk payload
const formOverhead = 64 << 10

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /upload/chunk
// POST stores one chunk, sent as multipart/form-data with fields "chunk"
// (file), "fileName", "chunkIndex" and "chunks".
func ChunkHandler(mgr *manager.Manager, scope ScopeFunc) (string, httprequest.PathItem) {
	return relPath(schema.ChunkPath), newPathItem(
		httprequest.NewPathItem("Chunk", "Stage one chunk of a file", schema.SchemaName).
			Post(func(w http.ResponseWriter, r *http.Request) {
				_ = chunkPost(w, r, mgr, scope)
			}, "Upload chunk",
				openapi.WithDescription("Upload one chunk of a file using multipart/form-data"),
				openapi.WithMultipartRequest(),
			),
		http.MethodPost,
	)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func chunkPost(w http.ResponseWriter, r *http.Request, mgr *manager.Manager, scope ScopeFunc) error {
	caller, err := scope(r)
	if err != nil {
		return writeError(w, r, err)
	}

	// Bound the body before the form is read
	r.Body = http.MaxBytesReader(w, r.Body, mgr.MaxChunkSize()+formOverhead)

	// Read the multipart form. Counts are read as text so that signs
	// and garbage are rejected with the field name.
	var form struct {
		FileName   string       `json:"fileName"`
		ChunkIndex string       `json:"chunkIndex"`
		Chunks     string       `json:"chunks"`
		Chunk      []types.File `json:"chunk"`
	}
	if err := httprequest.Read(r, &form); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return writeError(w, r, schema.NewError(schema.ChunkTooLarge, "request exceeds %d bytes", maxBytesErr.Limit))
		}
		return writeError(w, r, schema.NewError(schema.MalformedRequest, "unreadable form").Wrap(err))
	}
	for _, f := range form.Chunk {
		defer f.Body.Close() //nolint:gocritic // every part is closed when the handler returns
	}
	if len(form.Chunk) != 1 {
		return writeError(w, r, schema.NewError(schema.MalformedRequest, "expected one %q form field, got %d", schema.FieldChunk, len(form.Chunk)))
	}

	// Parse the counts
	index, err := schema.ParseCount(schema.FieldChunkIndex, form.ChunkIndex)
	if err != nil {
		return writeError(w, r, err)
	}
	total, err := schema.ParseCount(schema.FieldChunks, form.Chunks)
	if err != nil {
		return writeError(w, r, err)
	}

	// Store the chunk
	ack, err := mgr.ReceiveChunk(r.Context(), caller, schema.ChunkRequest{
		FileName:   form.FileName,
		Index:      index,
		TotalCount: total,
		Body:       form.Chunk[0].Body,
	})
	if err != nil {
		return writeError(w, r, err)
	}

	return writeData(w, r, http.StatusOK, "chunk received", ack)
}
