package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	blob "gocloud.dev/blob"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// payloadReader records errors from the chunk source so they are not
// mistaken for storage failures
type payloadReader struct {
	r   io.Reader
	err error
}

func (p *payloadReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if err != nil && err != io.EOF {
		p.err = err
	}
	return n, err
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ClaimManifest creates the manifest with a conditional write. When another
// writer got there first, its manifest is returned instead.
func (b *blobstore) ClaimManifest(ctx context.Context, key string, manifest schema.Manifest) (*schema.Manifest, bool, error) {
	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, false, err
	}
	if err := b.bucket.WriteAll(ctx, manifestKey(key), data, &blob.WriterOptions{
		ContentType: types.ContentTypeJSON,
		IfNotExist:  true,
	}); err == nil {
		return &manifest, true, nil
	} else if !isExists(err) {
		return nil, false, storeErr(err, schema.StorageWriteFailure, "manifest").WithKey(key)
	}

	// Manifest already exists
	existing, err := b.ReadManifest(ctx, key)
	return existing, false, err
}

// ReleaseManifest deletes the manifest when it is the only blob in the
// staging area of key
func (b *blobstore) ReleaseManifest(ctx context.Context, key string) (bool, error) {
	manifest := manifestKey(key)
	iter := b.bucket.List(&blob.ListOptions{Prefix: stagingDir(key)})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return false, storeErr(err, schema.StorageReadFailure, "listing staging area").WithKey(key)
		} else if !obj.IsDir && obj.Key != manifest {
			return false, nil
		}
	}
	if err := b.bucket.Delete(ctx, manifest); isNotFound(err) {
		return false, nil
	} else if err != nil {
		return false, storeErr(err, schema.StorageWriteFailure, "manifest").WithKey(key)
	}
	return true, nil
}

// ReadManifest returns the manifest for an upload key
func (b *blobstore) ReadManifest(ctx context.Context, key string) (*schema.Manifest, error) {
	data, err := b.bucket.ReadAll(ctx, manifestKey(key))
	if err != nil {
		return nil, storeErr(err, schema.StorageReadFailure, "manifest").WithKey(key)
	}
	var manifest schema.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, schema.NewError(schema.StorageReadFailure, "corrupt manifest").WithKey(key).Wrap(err)
	}
	return &manifest, nil
}

// WriteChunk streams a chunk into the staging area. The writer is aborted
// when the payload is empty, exceeds limit, or cannot be read, so an
// earlier write to the same index stays intact.
func (b *blobstore) WriteChunk(ctx context.Context, key string, index int, r io.Reader, limit int64) (int64, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := b.bucket.NewWriter(wctx, chunkKey(key, index), &blob.WriterOptions{
		ContentType: types.ContentTypeBinary,
	})
	if err != nil {
		return 0, storeErr(err, schema.StorageWriteFailure, "chunk").WithKey(key).WithIndex(index)
	}
	abort := func(e *schema.Error) (int64, error) {
		cancel()
		_ = w.Close()
		return 0, e.WithKey(key).WithIndex(index)
	}

	// Copy at most one byte over the limit
	src := &payloadReader{r: r}
	n, err := io.Copy(w, io.LimitReader(src, limit+1))
	switch {
	case src.err != nil:
		return abort(schema.NewError(schema.MalformedRequest, "reading chunk payload").Wrap(src.err))
	case err != nil:
		return abort(storeErr(err, schema.StorageWriteFailure, "chunk"))
	case n == 0:
		return abort(schema.NewError(schema.MalformedRequest, "empty chunk payload"))
	case n > limit:
		return abort(schema.NewError(schema.ChunkTooLarge, "chunk exceeds %d bytes", limit))
	}

	// Commit
	if err := w.Close(); err != nil {
		return 0, storeErr(err, schema.StorageWriteFailure, "chunk").WithKey(key).WithIndex(index)
	}

	// Return success
	return n, nil
}

// HasChunk reports whether a chunk is staged
func (b *blobstore) HasChunk(ctx context.Context, key string, index int) (bool, error) {
	exists, err := b.bucket.Exists(ctx, chunkKey(key, index))
	if err != nil {
		return false, storeErr(err, schema.StorageReadFailure, "chunk").WithKey(key).WithIndex(index)
	}
	return exists, nil
}

// OpenChunk returns a reader for a staged chunk
func (b *blobstore) OpenChunk(ctx context.Context, key string, index int) (io.ReadCloser, error) {
	r, err := b.bucket.NewReader(ctx, chunkKey(key, index), nil)
	if err != nil {
		return nil, storeErr(err, schema.StorageReadFailure, "chunk").WithKey(key).WithIndex(index)
	}
	return r, nil
}

// DeleteStaging removes every blob under the staging area of an upload key.
// Blobs which have already gone are not an error.
func (b *blobstore) DeleteStaging(ctx context.Context, key string) (int, error) {
	var result error
	var deleted int

	iter := b.bucket.List(&blob.ListOptions{Prefix: stagingDir(key)})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return deleted, errors.Join(result, storeErr(err, schema.StorageWriteFailure, "listing staging area").WithKey(key))
		} else if obj.IsDir {
			continue
		}
		if err := b.bucket.Delete(ctx, obj.Key); err != nil && !isNotFound(err) {
			result = errors.Join(result, storeErr(err, schema.StorageWriteFailure, "deleting %q", obj.Key).WithKey(key))
		} else if err == nil {
			deleted++
		}
	}

	// Return any errors
	return deleted, result
}

// ListStaging groups every staged blob by upload key
func (b *blobstore) ListStaging(ctx context.Context) ([]schema.StagingArea, error) {
	areas := make(map[string]*schema.StagingArea)
	order := []string{}

	prefix := schema.StagingPrefix + "/"
	iter := b.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, storeErr(err, schema.StorageReadFailure, "listing staging areas")
		} else if obj.IsDir {
			continue
		}

		// Keys are temp/<key>/<name>
		key, _, ok := strings.Cut(strings.TrimPrefix(obj.Key, prefix), "/")
		if !ok || key == "" {
			continue
		}
		area, exists := areas[key]
		if !exists {
			area = &schema.StagingArea{UploadKey: key}
			areas[key] = area
			order = append(order, key)
		}
		area.Blobs++
		area.Size += obj.Size
		if obj.ModTime.After(area.ModTime) {
			area.ModTime = obj.ModTime
		}
	}

	// Return in listing order
	result := make([]schema.StagingArea, 0, len(order))
	for _, key := range order {
		result = append(result, *areas[key])
	}
	return result, nil
}
