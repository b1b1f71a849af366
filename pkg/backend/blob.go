package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	config "github.com/aws/aws-sdk-go-v2/config"
	credentials "github.com/aws/aws-sdk-go-v2/credentials"
	s3 "github.com/aws/aws-sdk-go-v2/service/s3"
	types "github.com/mutablelogic/go-server/pkg/types"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	otelaws "go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	blob "gocloud.dev/blob"
	s3blob "gocloud.dev/blob/s3blob"

	// Drivers
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/memblob"  // mem:// URLs
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type blobstore struct {
	*opt
	bucket *blob.Bucket
	prefix string // key prefix within the bucket (s3 and mem only)
}

var _ upload.Store = (*blobstore)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewBlobStore creates a staging and artifact store using Go CDK.
// Supported URL schemes: s3://, file://, mem://
// Examples:
//   - "s3://my-bucket/uploads?region=us-east-1"
//   - "file://uploads/path/to/directory"
//   - "mem://uploads"
//
// For s3:// the path is a key prefix. For file:// the path is the root
// directory and the host is a logical name.
func NewBlobStore(ctx context.Context, u string, opts ...Opt) (*blobstore, error) {
	self := new(blobstore)

	// Set the options
	if url, err := url.Parse(u); err != nil {
		return nil, err
	} else if opt, err := apply(url, opts...); err != nil {
		return nil, err
	} else {
		self.opt = opt
	}

	// Validate the store name (URL host) is a valid identifier
	if !types.IsIdentifier(self.url.Host) {
		return nil, fmt.Errorf("store name %q must be a valid identifier (letter, digits, underscores, hyphens; max 64 chars)", self.url.Host)
	}

	// Open the bucket
	var bucket *blob.Bucket
	var err error
	switch self.url.Scheme {
	case "s3":
		bucket, err = self.openS3(ctx)
		self.prefix = strings.Trim(self.url.Path, "/")
	case "file":
		// The path is the bucket root directory
		openURL := &url.URL{Scheme: "file", Path: self.url.Path}
		if self.url.Query().Get("create_dir") != "" {
			openURL.RawQuery = url.Values{"create_dir": {"true"}}.Encode()
		}
		bucket, err = blob.OpenBucket(ctx, openURL.String())
	case "mem":
		bucket, err = blob.OpenBucket(ctx, "mem://")
		self.prefix = strings.Trim(self.url.Path, "/")
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", self.url.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}

	// Keys are relative to the prefix
	if self.prefix != "" {
		bucket = blob.PrefixedBucket(bucket, self.prefix+"/")
	}
	self.bucket = bucket

	// Return success
	return self, nil
}

// NewFileStore creates a file-based store with a logical name.
// dir must be an absolute path.
func NewFileStore(ctx context.Context, name, dir string, opts ...Opt) (*blobstore, error) {
	if !path.IsAbs(dir) {
		return nil, fmt.Errorf("store dir %q must be an absolute path", dir)
	}
	return NewBlobStore(ctx, "file://"+name+path.Clean(dir), opts...)
}

// Close the store
func (b *blobstore) Close() error {
	var result error
	if b.bucket != nil {
		result = errors.Join(result, b.bucket.Close())
		b.bucket = nil
	}

	// Return any errors
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Name returns the name of the store (the host component of the URL)
func (b *blobstore) Name() string {
	return b.url.Host
}

// URL returns the store location. Credentials are never part of it.
func (b *blobstore) URL() *url.URL {
	u := *b.url
	u.User = nil
	return &u
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (b *blobstore) openS3(ctx context.Context) (*blob.Bucket, error) {
	var cfg aws.Config
	if b.awsConfig != nil {
		cfg = *b.awsConfig
	} else {
		var loadOpts []func(*config.LoadOptions) error
		if b.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(b.region))
		}
		if b.accessKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(b.accessKey, b.secretKey, ""),
			))
		}
		if loaded, err := config.LoadDefaultConfig(ctx, loadOpts...); err != nil {
			return nil, err
		} else {
			cfg = loaded
		}
		if b.anonymous {
			cfg.Credentials = aws.AnonymousCredentials{}
		}
	}

	// Inject tracing middleware only when a tracer is configured
	if b.tracer != nil {
		otelaws.AppendMiddlewares(&cfg.APIOptions)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if b.endpoint != "" {
			o.BaseEndpoint = aws.String(b.endpoint)
			o.UsePathStyle = true
		}
	})
	return s3blob.OpenBucket(ctx, client, b.url.Host, nil)
}

// chunkKey returns the blob key of a staged chunk
func chunkKey(key string, index int) string {
	return stagingDir(key) + strconv.Itoa(index)
}

// manifestKey returns the blob key of an upload manifest
func manifestKey(key string) string {
	return stagingDir(key) + schema.ManifestName
}

// stagingDir returns the key prefix of an upload's staging area
func stagingDir(key string) string {
	return schema.StagingPrefix + "/" + key + "/"
}

// artifactKey returns the blob key of a published artifact
func artifactKey(name string) string {
	return schema.ArtifactPrefix + "/" + name
}
