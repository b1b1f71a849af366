package httpclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for uploader configuration.
type Opt func(*opt) error

// RecordFunc is called with each published artifact, so the caller
// can create the record which refers to it
type RecordFunc func(ctx context.Context, artifact *schema.Artifact) error

// ProgressFunc is called after each acknowledged chunk
type ProgressFunc func(done, total int)

type opt struct {
	token       string
	chunkSize   int64
	maxFileSize int64
	retries     int
	retryDelay  time.Duration
	concurrency int
	logger      *slog.Logger
	httpClient  *http.Client
	recorder    RecordFunc
	progress    ProgressFunc
}

///////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithToken sets the bearer token sent with every upload request.
func WithToken(token string) Opt {
	return func(o *opt) error {
		o.token = token
		return nil
	}
}

// WithChunkSize sets the size of each chunk, in bytes.
func WithChunkSize(size int64) Opt {
	return func(o *opt) error {
		if size <= 0 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		o.chunkSize = size
		return nil
	}
}

// WithMaxFileSize sets the largest file which may be uploaded, in bytes.
func WithMaxFileSize(size int64) Opt {
	return func(o *opt) error {
		if size <= 0 {
			return fmt.Errorf("max file size must be positive, got %d", size)
		}
		o.maxFileSize = size
		return nil
	}
}

// WithRetries sets the number of attempts for each chunk, including the
// first, and the fixed delay between attempts.
func WithRetries(attempts int, delay time.Duration) Opt {
	return func(o *opt) error {
		if attempts < 1 {
			return fmt.Errorf("attempts must be at least 1, got %d", attempts)
		} else if delay < 0 {
			return fmt.Errorf("retry delay must not be negative, got %v", delay)
		}
		o.retries = attempts
		o.retryDelay = delay
		return nil
	}
}

// WithConcurrency sets the number of chunks in flight at once.
func WithConcurrency(n int) Opt {
	return func(o *opt) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be at least 1, got %d", n)
		}
		o.concurrency = n
		return nil
	}
}

// WithLogger sets the structured logger, which also receives retry logs.
func WithLogger(logger *slog.Logger) Opt {
	return func(o *opt) error {
		if logger == nil {
			return fmt.Errorf("logger is nil")
		}
		o.logger = logger
		return nil
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) Opt {
	return func(o *opt) error {
		if client == nil {
			return fmt.Errorf("http client is nil")
		}
		o.httpClient = client
		return nil
	}
}

// WithRecorder sets the function called with each published artifact.
func WithRecorder(fn RecordFunc) Opt {
	return func(o *opt) error {
		o.recorder = fn
		return nil
	}
}

// WithProgress sets the function called after each acknowledged chunk.
func WithProgress(fn ProgressFunc) Opt {
	return func(o *opt) error {
		o.progress = fn
		return nil
	}
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opts ...Opt) (*opt, error) {
	o := &opt{
		chunkSize:   schema.DefaultChunkSize,
		maxFileSize: schema.DefaultMaxFileSize,
		retries:     schema.DefaultRetries,
		retryDelay:  schema.DefaultRetryDelay,
		concurrency: 1,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, fn := range opts {
		if err := fn(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
