package manager

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	// Packages
	uuid "github.com/google/uuid"
	otel "github.com/mutablelogic/go-client/pkg/otel"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// CONSTANTS

// maxPublishAttempts bounds the number of names tried when the declared
// file name, and then its suffixed variants, are already taken
const maxPublishAttempts = 5

////////////////////////////////////////////////////////////////////////////////
// TYPES

// sourceReader records read errors so a failing chunk is not reported
// as a failing artifact write
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(b []byte) (int, error) {
	n, err := s.r.Read(b)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Merge reassembles the staged chunks of an upload into a published
// artifact, in index order. Concurrent merges of the same upload key are
// serialized: later callers wait for the merge in flight and receive its
// result. Nothing staged is deleted unless the artifact was published.
func (manager *Manager) Merge(ctx context.Context, scope string, req schema.MergeRequest) (*schema.Artifact, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := schema.UploadKey(scope, req.FileName)

	// The shared merge is not cancelled with any single caller
	v, err, _ := manager.flight.Do(key, func() (any, error) {
		return manager.merge(context.WithoutCancel(ctx), scope, key, req)
	})
	if err != nil {
		return nil, err
	}

	// Each caller gets its own copy
	artifact := *v.(*schema.Artifact)
	return &artifact, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (manager *Manager) merge(ctx context.Context, scope, key string, req schema.MergeRequest) (_ *schema.Artifact, err error) {
	total := int(req.Chunks)
	start := time.Now()

	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Merge"))
	defer func() {
		manager.metrics.merged(child, start, err)
		endFunc(err)
	}()

	// Keep the sweeper away from this staging area
	manager.active.Store(key, struct{}{})
	defer manager.active.Delete(key)

	// Compare with the manifest when there is one
	if manifest, err := manager.store.ReadManifest(child, key); err == nil {
		if manifest.TotalCount != total {
			return nil, schema.NewError(schema.TotalCountMismatch, "upload declares %d chunks, got %d", manifest.TotalCount, total).WithKey(key)
		}
	} else if schema.ErrorKind(err) != schema.NotFound {
		return nil, err
	}

	// Every chunk must be staged
	for i := range total {
		if exists, err := manager.store.HasChunk(child, key, i); err != nil {
			return nil, err
		} else if !exists {
			return nil, schema.NewError(schema.IncompleteUpload, "chunk %d is missing", i).WithKey(key).WithIndex(i)
		}
	}

	// Publish under the first free name
	meta := map[string]string{
		schema.AttrFileName:  req.FileName,
		schema.AttrUploadKey: key,
	}
	if scope != "" {
		meta[schema.AttrScope] = scope
	}
	var artifact *schema.Artifact
	for attempt := 0; artifact == nil; attempt++ {
		if attempt >= maxPublishAttempts {
			return nil, schema.NewError(schema.StorageWriteFailure, "no free name for %q after %d attempts", req.FileName, attempt).WithKey(key)
		}
		name := candidateName(req.FileName, attempt)
		if exists, err := manager.store.ArtifactExists(child, name); err != nil {
			return nil, err
		} else if exists {
			continue
		}
		artifact, err = manager.store.PublishArtifact(child, name, meta, func(w io.Writer) error {
			return manager.concat(child, key, total, w)
		})
		if errors.Is(err, upload.ErrArtifactExists) {
			// Lost a race for the name
			artifact = nil
			continue
		} else if err != nil {
			return nil, err
		}
	}
	artifact.FileName = req.FileName

	// The artifact is published, so cleanup failures are logged not returned
	if deleted, err := manager.store.DeleteStaging(child, key); err != nil {
		manager.logger.WarnContext(child, "staging cleanup failed", "uploadKey", key, "deleted", deleted, "error", err)
	}

	manager.logger.InfoContext(child, "artifact published",
		"uploadKey", key,
		"fileName", req.FileName,
		"url", artifact.URL,
		"chunks", total,
		"bytes", artifact.Size,
	)

	// Return success
	return artifact, nil
}

// concat copies chunks 0..total-1 to w in index order
func (manager *Manager) concat(ctx context.Context, key string, total int, w io.Writer) error {
	for i := range total {
		if err := manager.copyChunk(ctx, key, i, w); err != nil {
			return err
		}
	}
	return nil
}

func (manager *Manager) copyChunk(ctx context.Context, key string, index int, w io.Writer) error {
	r, err := manager.store.OpenChunk(ctx, key, index)
	if schema.ErrorKind(err) == schema.NotFound {
		return schema.NewError(schema.IncompleteUpload, "chunk %d is missing", index).WithKey(key).WithIndex(index)
	} else if err != nil {
		return err
	}
	defer r.Close()

	src := &sourceReader{r: r}
	if _, err := io.Copy(w, src); src.err != nil {
		return schema.NewError(schema.StorageReadFailure, "reading chunk %d", index).WithKey(key).WithIndex(index).Wrap(src.err)
	} else if err != nil {
		return schema.NewError(schema.StorageWriteFailure, "writing chunk %d", index).WithKey(key).WithIndex(index).Wrap(err)
	}
	return nil
}

// candidateName returns the declared name on the first attempt, and a
// name with a random suffix before the extension after that
func candidateName(fileName string, attempt int) string {
	if attempt == 0 {
		return fileName
	}
	ext := path.Ext(fileName)
	stem := strings.TrimSuffix(fileName, ext)
	if stem == "" {
		stem, ext = fileName, ""
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return stem + "-" + suffix + ext
}
