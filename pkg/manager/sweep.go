package manager

import (
	"context"
	"errors"
	"time"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Abort discards the staging area of an upload. Aborting an upload with
// nothing staged is not an error.
func (manager *Manager) Abort(ctx context.Context, scope string, req schema.AbortRequest) (_ int, err error) {
	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Abort"))
	defer func() { endFunc(err) }()

	if err := req.Validate(); err != nil {
		return 0, err
	}
	key := schema.UploadKey(scope, req.FileName)
	if _, busy := manager.active.Load(key); busy {
		return 0, schema.NewError(schema.MergeInProgress, "upload %q is being merged", req.FileName).WithKey(key)
	}

	deleted, err := manager.store.DeleteStaging(child, key)
	if err != nil {
		return deleted, err
	}
	manager.logger.InfoContext(child, "upload aborted", "uploadKey", key, "fileName", req.FileName, "deleted", deleted)
	return deleted, nil
}

// Sweep removes staging areas whose newest blob is older than olderThan.
// Areas with a merge in flight are skipped.
func (manager *Manager) Sweep(ctx context.Context, olderThan time.Duration) (_ *schema.SweepResult, err error) {
	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Sweep"))
	defer func() { endFunc(err) }()

	areas, err := manager.store.ListStaging(child)
	if err != nil {
		return nil, err
	}

	var result error
	swept := new(schema.SweepResult)
	cutoff := manager.now().Add(-olderThan)
	for _, area := range areas {
		if !area.ModTime.Before(cutoff) {
			continue
		}
		if _, busy := manager.active.Load(area.UploadKey); busy {
			continue
		}
		deleted, err := manager.store.DeleteStaging(child, area.UploadKey)
		swept.Blobs += deleted
		if err != nil {
			manager.logger.WarnContext(child, "sweep failed", "uploadKey", area.UploadKey, "error", err)
			result = errors.Join(result, err)
			continue
		}
		swept.Sessions++
		manager.metrics.swept.Add(child, 1)
		manager.logger.DebugContext(child, "staging area swept", "uploadKey", area.UploadKey, "blobs", deleted, "modtime", area.ModTime)
	}

	// Return what was removed, and any errors
	return swept, result
}

// RunSweeper calls Sweep every interval until the context is cancelled
func (manager *Manager) RunSweeper(ctx context.Context, interval, ttl time.Duration) error {
	if interval <= 0 || ttl <= 0 {
		return schema.NewError(schema.MalformedRequest, "sweep interval and ttl must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := manager.Sweep(ctx, ttl)
			if err != nil {
				manager.logger.WarnContext(ctx, "sweep completed with errors", "error", err)
			}
			if result != nil && result.Sessions > 0 {
				manager.logger.InfoContext(ctx, "sweep completed", "sessions", result.Sessions, "blobs", result.Blobs)
			}
		}
	}
}
