package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Packages
	upload "github.com/mutablelogic/go-upload"
	backend "github.com/mutablelogic/go-upload/pkg/backend"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	metric "go.opentelemetry.io/otel/metric"
	noop "go.opentelemetry.io/otel/metric/noop"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for upload manager configuration.
type Opt func(*opts) error

type opts struct {
	tracer       trace.Tracer
	meter        metric.Meter
	logger       *slog.Logger
	store        upload.Store
	maxChunkSize int64
	now          func() time.Time
}

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithTracer sets the tracer used for tracing operations.
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opts) error {
		o.tracer = tracer
		return nil
	}
}

// WithMeter sets the meter used to record chunk and merge metrics.
func WithMeter(meter metric.Meter) Opt {
	return func(o *opts) error {
		if meter == nil {
			return fmt.Errorf("meter is nil")
		}
		o.meter = meter
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Opt {
	return func(o *opts) error {
		if logger == nil {
			return fmt.Errorf("logger is nil")
		}
		o.logger = logger
		return nil
	}
}

// WithBackend opens a blob backend (mem://, file://, s3://) as the store
// for staged chunks and published artifacts. Only one backend may be set.
func WithBackend(ctx context.Context, url string, backendOpts ...backend.Opt) Opt {
	return func(o *opts) error {
		if o.store != nil {
			return fmt.Errorf("backend %q already registered", o.store.Name())
		}
		store, err := backend.NewBlobStore(ctx, url, backendOpts...)
		if err != nil {
			return err
		}
		o.store = store
		return nil
	}
}

// WithStore sets an already opened store. The manager closes it.
func WithStore(store upload.Store) Opt {
	return func(o *opts) error {
		if store == nil {
			return fmt.Errorf("store is nil")
		} else if o.store != nil {
			return fmt.Errorf("backend %q already registered", o.store.Name())
		}
		o.store = store
		return nil
	}
}

// WithMaxChunkSize sets the largest chunk payload accepted, in bytes.
func WithMaxChunkSize(size int64) Opt {
	return func(o *opts) error {
		if size <= 0 {
			return fmt.Errorf("max chunk size must be positive, got %d", size)
		}
		o.maxChunkSize = size
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opt []Opt) (opts, error) {
	// Set defaults
	o := opts{
		maxChunkSize: schema.DefaultMaxChunkSize,
		meter:        noop.NewMeterProvider().Meter(schema.SchemaName),
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
	}

	// Apply options
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			if o.store != nil {
				err = errors.Join(err, o.store.Close())
			}
			return opts{}, err
		}
	}

	// A store is required
	if o.store == nil {
		return opts{}, fmt.Errorf("no backend registered")
	}

	// Return success
	return o, nil
}
