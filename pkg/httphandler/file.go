package httphandler

import (
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	openapi "github.com/mutablelogic/go-server/pkg/openapi"
	types "github.com/mutablelogic/go-server/pkg/types"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /files/{path...}
// GET downloads a published artifact, HEAD returns its headers only.
func FileHandler(mgr *manager.Manager) (string, httprequest.PathItem) {
	return relPath(schema.FilesPath) + "/{path...}", newPathItem(
		httprequest.NewPathItem("Files", "Published files", schema.SchemaName).
			Get(func(w http.ResponseWriter, r *http.Request) {
				_ = fileGet(w, r, mgr)
			}, "Download file", openapi.WithDescription("Download a published file")).
			Head(func(w http.ResponseWriter, r *http.Request) {
				_ = fileHead(w, r, mgr)
			}, "File headers", openapi.WithDescription("Get published file headers without body")),
		http.MethodGet, http.MethodHead,
	)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func fileHead(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	artifact, err := mgr.StatArtifact(r.Context(), r.PathValue("path"))
	if err != nil {
		return writeError(w, r, err)
	}
	writeArtifactHeaders(w, artifact)
	w.WriteHeader(http.StatusOK)
	return nil
}

func fileGet(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	reader, artifact, err := mgr.ReadArtifact(r.Context(), r.PathValue("path"))
	if err != nil {
		return writeError(w, r, err)
	}
	defer reader.Close()

	writeArtifactHeaders(w, artifact)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		return err
	}
	return nil
}

// writeArtifactHeaders sets Content-Type, Content-Length, Last-Modified and
// Content-Disposition from the artifact descriptor
func writeArtifactHeaders(w http.ResponseWriter, artifact *schema.Artifact) {
	contentType := artifact.ContentType
	if contentType == "" {
		contentType = schema.ContentTypeForName(artifact.Name)
	}
	w.Header().Set(types.ContentTypeHeader, contentType)
	w.Header().Set(types.ContentLengthHeader, strconv.FormatInt(artifact.Size, 10))
	if !artifact.ModTime.IsZero() {
		w.Header().Set(types.ContentModifiedHeader, artifact.ModTime.UTC().Format(http.TimeFormat))
	}
	if filename := path.Base(artifact.Name); filename != "" && filename != "." && filename != "/" {
		w.Header().Set(types.ContentDispositonHeader, "inline; filename*=UTF-8''"+url.PathEscape(filename))
	}
}
