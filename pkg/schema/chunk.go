package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"unicode"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// ChunkRequest is one slice of a file on its way into the staging area
type ChunkRequest struct {
	FileName   string    `json:"fileName"`
	Index      int       `json:"chunkIndex"`
	TotalCount int       `json:"chunks"`
	Body       io.Reader `json:"-"`
}

// ChunkAck acknowledges a stored chunk, with the total count the
// server now considers authoritative for the upload
type ChunkAck struct {
	ChunkIndex  int `json:"chunkIndex"`
	TotalChunks int `json:"totalChunks"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r ChunkRequest) String() string {
	return types.Stringify(r)
}

func (r ChunkAck) String() string {
	return types.Stringify(r)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// UploadKey returns the staging key for a file name within a caller scope.
// Keys are hex, so they are always safe as a single storage path segment.
func UploadKey(scope, fileName string) string {
	sum := sha256.Sum256([]byte(scope + "\x00" + fileName))
	return hex.EncodeToString(sum[:16])
}

// Validate checks the request fields, excluding the payload
func (r ChunkRequest) Validate() error {
	if err := ValidateFileName(r.FileName); err != nil {
		return err
	}
	if err := ValidateTotalCount(r.TotalCount); err != nil {
		return err
	}
	if r.Index < 0 || r.Index >= r.TotalCount {
		return NewError(MalformedRequest, "chunk index %d out of range [0, %d)", r.Index, r.TotalCount).WithIndex(r.Index)
	}
	if r.Body == nil {
		return NewError(MalformedRequest, "missing chunk payload").WithIndex(r.Index)
	}
	return nil
}

// ValidateFileName rejects names which cannot be used as a single
// artifact path segment
func ValidateFileName(name string) error {
	switch {
	case name == "":
		return NewError(MalformedRequest, "missing file name")
	case len(name) > MaxFileNameLength:
		return NewError(MalformedRequest, "file name exceeds %d bytes", MaxFileNameLength)
	case name == "." || name == "..":
		return NewError(MalformedRequest, "invalid file name %q", name)
	case strings.ContainsAny(name, "/\\"):
		return NewError(MalformedRequest, "file name %q contains a path separator", name)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return NewError(MalformedRequest, "file name contains control characters")
	}
	return nil
}

// ValidateTotalCount checks a declared chunk count
func ValidateTotalCount(n int) error {
	if n < 1 || n > MaxChunks {
		return NewError(MalformedRequest, "chunk count %d out of range [1, %d]", n, MaxChunks)
	}
	return nil
}

// ParseCount parses a non-negative decimal integer form field. Signs,
// whitespace and anything other than ASCII digits are rejected.
func ParseCount(field, value string) (int, error) {
	if value == "" {
		return 0, NewError(MalformedRequest, "missing %q field", field)
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0, NewError(MalformedRequest, "invalid %q field %q", field, value)
		}
	}
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, NewError(MalformedRequest, "invalid %q field %q", field, value)
	}
	return int(n), nil
}
