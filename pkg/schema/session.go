package schema

import (
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Manifest is written by the first chunk of an upload and fixes the
// declared total count for every later chunk and merge
type Manifest struct {
	FileName   string    `json:"fileName"`
	Scope      string    `json:"scope,omitempty"`
	TotalCount int       `json:"totalCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// StagingArea summarises the staged blobs of one upload key
type StagingArea struct {
	UploadKey string    `json:"uploadKey"`
	Blobs     int       `json:"blobs"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"modtime,omitzero"` // newest blob
}

// SweepResult reports what a sweep of abandoned staging areas removed
type SweepResult struct {
	Sessions int `json:"sessions"`
	Blobs    int `json:"blobs"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (m Manifest) String() string {
	return types.Stringify(m)
}

func (s StagingArea) String() string {
	return types.Stringify(s)
}

func (r SweepResult) String() string {
	return types.Stringify(r)
}
