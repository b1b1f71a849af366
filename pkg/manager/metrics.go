package manager

import (
	"context"
	"time"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	attribute "go.opentelemetry.io/otel/attribute"
	metric "go.opentelemetry.io/otel/metric"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type metrics struct {
	chunks        metric.Int64Counter
	chunkBytes    metric.Int64Counter
	merges        metric.Int64Counter
	mergeDuration metric.Float64Histogram
	swept         metric.Int64Counter
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newMetrics(meter metric.Meter) (*metrics, error) {
	var err error
	m := new(metrics)
	if m.chunks, err = meter.Int64Counter(schema.SchemaName+".chunks.received",
		metric.WithDescription("Chunks stored in the staging area"),
	); err != nil {
		return nil, err
	}
	if m.chunkBytes, err = meter.Int64Counter(schema.SchemaName+".chunks.bytes",
		metric.WithDescription("Chunk payload bytes stored in the staging area"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.merges, err = meter.Int64Counter(schema.SchemaName+".merges",
		metric.WithDescription("Merge attempts by result"),
	); err != nil {
		return nil, err
	}
	if m.mergeDuration, err = meter.Float64Histogram(schema.SchemaName+".merge.duration",
		metric.WithDescription("Time taken to reassemble and publish an artifact"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.swept, err = meter.Int64Counter(schema.SchemaName+".staging.swept",
		metric.WithDescription("Abandoned staging areas removed"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (m *metrics) chunkReceived(ctx context.Context, size int64) {
	m.chunks.Add(ctx, 1)
	m.chunkBytes.Add(ctx, size)
}

func (m *metrics) merged(ctx context.Context, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(schema.AsError(err, schema.StorageWriteFailure).Kind)
	}
	m.merges.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	m.mergeDuration.Record(ctx, time.Since(start).Seconds())
}
