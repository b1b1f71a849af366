package manager

import (
	"context"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ReceiveChunk validates one chunk and stores it in the staging area of
// the upload key derived from scope and file name. The first chunk of an
// upload fixes its total count; later chunks which disagree are rejected.
// Writes to distinct indices never block each other.
func (manager *Manager) ReceiveChunk(ctx context.Context, scope string, req schema.ChunkRequest) (_ *schema.ChunkAck, err error) {
	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("ReceiveChunk"))
	defer func() { endFunc(err) }()

	// Validate the request
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := schema.UploadKey(scope, req.FileName)

	// Claim the manifest, or compare against the existing one
	manifest, created, err := manager.store.ClaimManifest(child, key, schema.Manifest{
		FileName:   req.FileName,
		Scope:      scope,
		TotalCount: req.TotalCount,
		CreatedAt:  manager.now(),
	})
	if err != nil {
		return nil, err
	} else if manifest.TotalCount != req.TotalCount {
		return nil, schema.NewError(schema.TotalCountMismatch, "upload declares %d chunks, got %d", manifest.TotalCount, req.TotalCount).WithKey(key).WithIndex(req.Index)
	}

	// Write the chunk. A rejected first chunk gives up the claim, so that
	// the upload can start again with another total count.
	size, err := manager.store.WriteChunk(child, key, req.Index, req.Body, manager.maxChunkSize)
	if err != nil {
		if created {
			if _, rerr := manager.store.ReleaseManifest(context.WithoutCancel(child), key); rerr != nil {
				manager.logger.WarnContext(child, "manifest not released", "uploadKey", key, "error", rerr)
			}
		}
		return nil, err
	}

	// Record and log
	manager.metrics.chunkReceived(child, size)
	manager.logger.DebugContext(child, "chunk received",
		"uploadKey", key,
		"fileName", req.FileName,
		"index", req.Index,
		"total", manifest.TotalCount,
		"bytes", size,
	)

	// Return success
	return &schema.ChunkAck{
		ChunkIndex:  req.Index,
		TotalChunks: manifest.TotalCount,
	}, nil
}
