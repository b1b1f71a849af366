package manager

import (
	"context"
	"sync"

	// Packages
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	singleflight "golang.org/x/sync/singleflight"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Manager receives chunks, reassembles them into artifacts and serves
// the artifacts back. Merges are serialized per upload key.
type Manager struct {
	opts
	metrics *metrics
	flight  singleflight.Group
	active  sync.Map // upload keys with a merge in flight
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a new upload manager. A backend is required.
func New(ctx context.Context, opts ...Opt) (*Manager, error) {
	self := new(Manager)

	// Apply options
	if opt, err := applyOpts(opts); err != nil {
		return nil, err
	} else {
		self.opts = opt
	}

	// Create the instruments
	if metrics, err := newMetrics(self.meter); err != nil {
		return nil, err
	} else {
		self.metrics = metrics
	}

	// Return success
	return self, nil
}

// Close the store
func (manager *Manager) Close() error {
	return manager.store.Close()
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Store returns the underlying store
func (manager *Manager) Store() upload.Store {
	return manager.store
}

// MaxChunkSize returns the largest chunk payload accepted, in bytes
func (manager *Manager) MaxChunkSize() int64 {
	return manager.maxChunkSize
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func spanManagerName(op string) string {
	return schema.SchemaName + ".manager." + op
}
