package manager

import (
	"context"
	"io"
	"strings"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ReadArtifact returns a reader for the artifact at a decoded locator path
// (the part after /files/). Paths which would leave the artifact root are
// reported as NotFound. Caller must close the reader.
func (manager *Manager) ReadArtifact(ctx context.Context, locator string) (_ io.ReadCloser, _ *schema.Artifact, err error) {
	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("ReadArtifact"))
	defer func() { endFunc(err) }()

	name, err := artifactName(locator)
	if err != nil {
		return nil, nil, err
	}
	return manager.store.ReadArtifact(child, name)
}

// StatArtifact returns the artifact descriptor at a decoded locator path
func (manager *Manager) StatArtifact(ctx context.Context, locator string) (_ *schema.Artifact, err error) {
	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("StatArtifact"))
	defer func() { endFunc(err) }()

	name, err := artifactName(locator)
	if err != nil {
		return nil, err
	}
	return manager.store.StatArtifact(child, name)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// artifactName checks every segment of a locator path on its own, so no
// segment can climb out of the artifact root
func artifactName(locator string) (string, error) {
	locator = strings.TrimPrefix(locator, "/")
	if locator == "" {
		return "", schema.NewError(schema.NotFound, "empty locator")
	}
	for _, segment := range strings.Split(locator, "/") {
		switch {
		case segment == "", segment == ".", segment == "..":
			return "", schema.NewError(schema.NotFound, "invalid locator %q", locator)
		case strings.ContainsAny(segment, "\\\x00"):
			return "", schema.NewError(schema.NotFound, "invalid locator %q", locator)
		}
	}
	return locator, nil
}
