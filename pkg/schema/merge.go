package schema

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Count is a chunk count which decodes from either a JSON number
// or a JSON string of decimal digits
type Count int

// MergeRequest asks for the staged chunks of a file to be reassembled
type MergeRequest struct {
	FileName string `json:"fileName"`
	Chunks   Count  `json:"chunks"`
}

// AbortRequest asks for the staged chunks of a file to be discarded
type AbortRequest struct {
	FileName string `json:"fileName"`
}

// Artifact describes a published, immutable file
type Artifact struct {
	URL         string    `json:"url"`                   // public locator
	Name        string    `json:"name,omitempty"`        // stored name, possibly suffixed
	FileName    string    `json:"fileName,omitempty"`    // declared name
	Size        int64     `json:"size"`                  // size in bytes
	ContentType string    `json:"contentType,omitempty"` // inferred from the extension
	ModTime     time.Time `json:"modtime,omitzero"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r MergeRequest) String() string {
	return types.Stringify(r)
}

func (r AbortRequest) String() string {
	return types.Stringify(r)
}

func (a Artifact) String() string {
	return types.Stringify(a)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Validate checks the merge request fields
func (r MergeRequest) Validate() error {
	if err := ValidateFileName(r.FileName); err != nil {
		return err
	}
	return ValidateTotalCount(int(r.Chunks))
}

// Validate checks the abort request fields
func (r AbortRequest) Validate() error {
	return ValidateFileName(r.FileName)
}

func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	n, err := ParseCount(FieldChunks, s)
	if err != nil {
		return err
	}
	*c = Count(n)
	return nil
}

// Locator returns the public locator of an artifact name, with each
// path segment percent-encoded
func Locator(name string) string {
	segments := strings.Split(name, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return FilesPath + "/" + strings.Join(segments, "/")
}
