package upload

import (
	"context"
	"errors"
	"io"
	"net/url"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// INTERFACES

// Store is durable storage for staged chunks and published artifacts.
// A single store is shared by every request handler.
type Store interface {
	io.Closer

	// Name returns the name of the store
	Name() string

	// URL returns the store location, without credentials
	URL() *url.URL

	// ClaimManifest creates the manifest for an upload key if none exists,
	// and returns the manifest which is now authoritative. It reports
	// whether this call created it.
	ClaimManifest(ctx context.Context, key string, manifest schema.Manifest) (*schema.Manifest, bool, error)

	// ReleaseManifest removes the manifest of an upload key while no chunk
	// is staged under it, and reports whether it was removed
	ReleaseManifest(ctx context.Context, key string) (bool, error)

	// ReadManifest returns the manifest for an upload key
	ReadManifest(ctx context.Context, key string) (*schema.Manifest, error)

	// WriteChunk stores a chunk, replacing any earlier write to the same
	// index. Payloads which are empty or exceed limit bytes are not stored.
	WriteChunk(ctx context.Context, key string, index int, r io.Reader, limit int64) (int64, error)

	// HasChunk reports whether a chunk is staged
	HasChunk(ctx context.Context, key string, index int) (bool, error)

	// OpenChunk returns a reader for a staged chunk. Caller must close it.
	OpenChunk(ctx context.Context, key string, index int) (io.ReadCloser, error)

	// DeleteStaging removes every blob staged for an upload key and
	// returns the number of blobs removed
	DeleteStaging(ctx context.Context, key string) (int, error)

	// ListStaging returns every staging area in the store
	ListStaging(ctx context.Context) ([]schema.StagingArea, error)

	// ArtifactExists reports whether an artifact name is taken
	ArtifactExists(ctx context.Context, name string) (bool, error)

	// PublishArtifact writes an artifact through fn. Nothing is visible
	// under name unless fn and the final commit both succeed. Returns
	// ErrArtifactExists if the name was taken.
	PublishArtifact(ctx context.Context, name string, meta map[string]string, fn func(io.Writer) error) (*schema.Artifact, error)

	// StatArtifact returns the artifact descriptor
	StatArtifact(ctx context.Context, name string) (*schema.Artifact, error)

	// ReadArtifact returns a reader for an artifact. Caller must close it.
	ReadArtifact(ctx context.Context, name string) (io.ReadCloser, *schema.Artifact, error)
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// ErrArtifactExists is returned by PublishArtifact when another artifact
// already holds the name
var ErrArtifactExists = errors.New("artifact already exists")
