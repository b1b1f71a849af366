package backend

import (
	"context"
	"io"

	// Packages
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	blob "gocloud.dev/blob"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ArtifactExists reports whether an artifact name is taken
func (b *blobstore) ArtifactExists(ctx context.Context, name string) (bool, error) {
	exists, err := b.bucket.Exists(ctx, artifactKey(name))
	if err != nil {
		return false, storeErr(err, schema.StorageReadFailure, "artifact %q", name)
	}
	return exists, nil
}

// PublishArtifact writes an artifact with a conditional writer. If fn
// fails the writer context is cancelled before Close, which aborts the
// write so no partial artifact is ever stored.
func (b *blobstore) PublishArtifact(ctx context.Context, name string, meta map[string]string, fn func(io.Writer) error) (*schema.Artifact, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := b.bucket.NewWriter(wctx, artifactKey(name), &blob.WriterOptions{
		ContentType: schema.ContentTypeForName(name),
		Metadata:    meta,
		IfNotExist:  true,
	})
	if err != nil {
		if isExists(err) {
			return nil, upload.ErrArtifactExists
		}
		return nil, storeErr(err, schema.StorageWriteFailure, "artifact %q", name)
	}

	// Write the content, aborting on failure
	if err := fn(w); err != nil {
		cancel()
		_ = w.Close()
		return nil, storeErr(err, schema.StorageWriteFailure, "artifact %q", name)
	}

	// Commit
	if err := w.Close(); err != nil {
		if isExists(err) {
			return nil, upload.ErrArtifactExists
		}
		return nil, storeErr(err, schema.StorageWriteFailure, "artifact %q", name)
	}

	// The write succeeded, so return a partial descriptor rather than
	// an error if the attributes cannot be read back
	artifact, err := b.StatArtifact(ctx, name)
	if err != nil {
		return &schema.Artifact{
			URL:         schema.Locator(name),
			Name:        name,
			FileName:    meta[schema.AttrFileName],
			ContentType: schema.ContentTypeForName(name),
		}, nil
	}

	// Return success
	return artifact, nil
}

// StatArtifact returns the artifact descriptor
func (b *blobstore) StatArtifact(ctx context.Context, name string) (*schema.Artifact, error) {
	attrs, err := b.bucket.Attributes(ctx, artifactKey(name))
	if err != nil {
		return nil, storeErr(err, schema.StorageReadFailure, "artifact %q", name)
	}
	return attrsToArtifact(name, attrs), nil
}

// ReadArtifact returns a reader for an artifact
func (b *blobstore) ReadArtifact(ctx context.Context, name string) (io.ReadCloser, *schema.Artifact, error) {
	artifact, err := b.StatArtifact(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	r, err := b.bucket.NewReader(ctx, artifactKey(name), nil)
	if err != nil {
		return nil, nil, storeErr(err, schema.StorageReadFailure, "artifact %q", name)
	}
	return r, artifact, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func attrsToArtifact(name string, attrs *blob.Attributes) *schema.Artifact {
	artifact := &schema.Artifact{
		URL:         schema.Locator(name),
		Name:        name,
		Size:        attrs.Size,
		ModTime:     attrs.ModTime,
		ContentType: attrs.ContentType,
	}
	if fileName, exists := attrs.Metadata[schema.AttrFileName]; exists {
		artifact.FileName = fileName
	}
	if artifact.ContentType == "" {
		artifact.ContentType = schema.ContentTypeForName(name)
	}
	return artifact
}
