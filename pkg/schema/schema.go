package schema

import "time"

////////////////////////////////////////////////////////////////////////////////
// CONSTANTS

const (
	SchemaName = "upload"

	// Storage layout. Chunks are staged under StagingPrefix/<key>/<index>
	// and published artifacts live under ArtifactPrefix/<name>.
	StagingPrefix  = "temp"
	ArtifactPrefix = "files"
	ManifestName   = "manifest"

	// HTTP paths
	ChunkPath = "/upload/chunk"
	MergePath = "/upload/merge"
	AbortPath = "/upload/abort"
	FilesPath = "/files"

	// Multipart form fields for a chunk upload
	FieldChunk      = "chunk"
	FieldFileName   = "fileName"
	FieldChunkIndex = "chunkIndex"
	FieldChunks     = "chunks"

	// Artifact metadata keys. S3 normalizes metadata keys to lowercase.
	AttrFileName  = "filename"
	AttrUploadKey = "upload-key"
	AttrScope     = "scope"
)

const (
	DefaultChunkSize    = 1 << 20  // 1 MiB slices on the client
	DefaultMaxChunkSize = 8 << 20  // per-chunk cap on the server
	DefaultMaxFileSize  = 20 << 20 // whole-file cap on the client
	DefaultRetries      = 3        // attempts per chunk, including the first
	DefaultRetryDelay   = time.Second
	DefaultSweepTTL     = 24 * time.Hour

	// MaxChunks bounds the declared chunk count of a single upload
	MaxChunks = 10000

	// MaxFileNameLength is the longest file name accepted, in bytes
	MaxFileNameLength = 255
)
