package httphandler

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	jsonschema "github.com/mutablelogic/go-server/pkg/jsonschema"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Router is the interface required to register HTTP handlers. It is
// satisfied by a go-server httprouter.Router.
type Router interface {
	RegisterPath(path string, params *jsonschema.Schema, pathitem httprequest.PathItem) error
}

// pathItem answers methods without a handler with an envelope
// rather than the router's default error body
type pathItem struct {
	httprequest.PathItem
	allow []string
}

var _ httprequest.PathItem = (*pathItem)(nil)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// RegisterHandlers registers the upload and file HTTP handlers on the
// provided router, relative to the router prefix. Upload endpoints derive
// the caller scope with scope, which defaults to OpaqueScope when nil.
func RegisterHandlers(mgr *manager.Manager, router Router, scope ScopeFunc) error {
	if scope == nil {
		scope = OpaqueScope
	}

	var result error
	register := func(path string, item httprequest.PathItem) {
		result = errors.Join(result, router.RegisterPath(path, nil, item))
	}
	register(ChunkHandler(mgr, scope))
	register(MergeHandler(mgr, scope))
	register(AbortHandler(mgr, scope))
	register(FileHandler(mgr))
	return result
}

///////////////////////////////////////////////////////////////////////////////
// PATH ITEM

func newPathItem(item httprequest.PathItem, allow ...string) *pathItem {
	return &pathItem{PathItem: item, allow: allow}
}

// Handler dispatches to the method handlers, or writes a 405 envelope
func (p *pathItem) Handler() http.HandlerFunc {
	next := p.PathItem.Handler()
	return func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains(p.allow, strings.ToUpper(r.Method)) {
			_ = methodNotAllowed(w, r, p.allow...)
			return
		}
		next(w, r)
	}
}

// relPath returns a route path relative to the router prefix
func relPath(path string) string {
	return strings.TrimPrefix(path, "/")
}
