package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	// Packages
	client "github.com/mutablelogic/go-client"
	types "github.com/mutablelogic/go-server/pkg/types"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Client downloads published artifacts. It wraps the base HTTP client.
type Client struct {
	*client.Client
}

// artifactUnmarshaler streams the response body to w and captures the
// artifact descriptor from the response headers
type artifactUnmarshaler struct {
	name     string
	w        io.Writer
	artifact *schema.Artifact
}

var _ client.Unmarshaler = (*artifactUnmarshaler)(nil)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a download client with the given base URL and options.
// The url parameter should point to the upload API endpoint, e.g.
// "http://localhost:8080/api/upload".
func New(url string, opts ...client.ClientOpt) (*Client, error) {
	cl, err := client.New(append(opts, client.OptEndpoint(url))...)
	if err != nil {
		return nil, err
	}
	return &Client{cl}, nil
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ReadArtifact downloads an artifact to w. The locator is either the
// public URL path (/files/...) or the artifact name.
func (c *Client) ReadArtifact(ctx context.Context, locator string, w io.Writer) (*schema.Artifact, error) {
	name, err := locatorName(locator)
	if err != nil {
		return nil, err
	}
	u := &artifactUnmarshaler{name: name, w: w}
	if err := c.DoWithContext(ctx, client.NewRequest(), u, client.OptPath(pathSegments(schema.ArtifactPrefix, name)...)); err != nil {
		return nil, err
	}
	return u.artifact, nil
}

// StatArtifact returns the artifact descriptor without the content
func (c *Client) StatArtifact(ctx context.Context, locator string) (*schema.Artifact, error) {
	name, err := locatorName(locator)
	if err != nil {
		return nil, err
	}
	u := &artifactUnmarshaler{name: name}
	if err := c.DoWithContext(ctx, client.NewRequestEx(http.MethodHead, ""), u, client.OptPath(pathSegments(schema.ArtifactPrefix, name)...)); err != nil {
		return nil, err
	}
	return u.artifact, nil
}

///////////////////////////////////////////////////////////////////////////////
// INTERFACE IMPLEMENTATION

func (r *artifactUnmarshaler) Unmarshal(header http.Header, reader io.Reader) error {
	r.artifact = &schema.Artifact{
		URL:         schema.Locator(r.name),
		Name:        r.name,
		ContentType: header.Get(types.ContentTypeHeader),
		Size:        -1,
	}
	if size, err := strconv.ParseInt(header.Get(types.ContentLengthHeader), 10, 64); err == nil {
		r.artifact.Size = size
	}
	if modtime, err := http.ParseTime(header.Get(types.ContentModifiedHeader)); err == nil {
		r.artifact.ModTime = modtime.In(time.Local)
	}
	if r.w == nil {
		return nil
	}
	n, err := io.Copy(r.w, reader)
	if r.artifact.Size < 0 {
		r.artifact.Size = n
	}
	return err
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// locatorName returns the artifact name for a public locator or a name
func locatorName(locator string) (string, error) {
	if rest, ok := strings.CutPrefix(locator, schema.FilesPath+"/"); ok {
		name, err := url.PathUnescape(rest)
		if err != nil {
			return "", schema.NewError(schema.MalformedRequest, "invalid locator %q", locator)
		}
		locator = name
	}
	if locator == "" {
		return "", schema.NewError(schema.MalformedRequest, "missing locator")
	}
	return locator, nil
}

// pathSegments splits paths into the segments of a request path, which
// are escaped one by one
func pathSegments(paths ...string) []any {
	segments := make([]any, 0, len(paths))
	for _, path := range paths {
		for part := range strings.SplitSeq(path, "/") {
			if part != "" {
				segments = append(segments, part)
			}
		}
	}
	return segments
}
