package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	// Packages
	units "github.com/docker/go-units"
	chi "github.com/go-chi/chi/v5"
	middleware "github.com/go-chi/chi/v5/middleware"
	httprouter "github.com/mutablelogic/go-server/pkg/httprouter"
	httpserver "github.com/mutablelogic/go-server/pkg/httpserver"
	otel "github.com/mutablelogic/go-server/pkg/otel"
	backend "github.com/mutablelogic/go-upload/pkg/backend"
	httphandler "github.com/mutablelogic/go-upload/pkg/httphandler"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	version "github.com/mutablelogic/go-upload/pkg/version"
	gootel "go.opentelemetry.io/otel"
	trace "go.opentelemetry.io/otel/trace"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ServerCommands struct {
	Server RunServerCommand `cmd:"" name:"server" help:"Run HTTP server." group:"SERVER"`
	Sweep  SweepCommand     `cmd:"" name:"sweep" help:"Remove abandoned staging areas once, then exit." group:"SERVER"`
}

// StoreFlags select and configure the storage backend
type StoreFlags struct {
	Backend    string `name:"backend" env:"UPLOAD_BACKEND" default:"file://upload${TMPDIR}/upload?create_dir=true" help:"Backend URL (mem://name, file://name/path, s3://bucket/prefix)"`
	S3Endpoint string `name:"s3-endpoint" env:"UPLOAD_S3_ENDPOINT" help:"S3-compatible endpoint, e.g. http://localhost:9000"`
	Anonymous  bool   `name:"s3-anonymous" help:"Access S3 without credentials"`
}

// OTelFlags export traces and metrics over OTLP
type OTelFlags struct {
	OTelEndpoint string `name:"otel-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" help:"OTLP endpoint for traces and metrics"`
	OTelHeader   string `name:"otel-header" env:"OTEL_EXPORTER_OTLP_HEADERS" help:"Headers sent to the OTLP endpoint, as key=value pairs"`
}

type RunServerCommand struct {
	StoreFlags
	OTelFlags
	Addr          string        `name:"addr" env:"UPLOAD_ADDR" default:"localhost:8080" help:"Listen address"`
	Prefix        string        `name:"prefix" default:"/api/upload" help:"Path prefix for all routes"`
	Origin        string        `name:"origin" default:"*" help:"Allowed CORS origin"`
	MaxChunk      string        `name:"max-chunk" env:"UPLOAD_MAX_CHUNK" default:"8MiB" help:"Largest chunk accepted"`
	JWTSecret     string        `name:"jwt-secret" env:"UPLOAD_JWT_SECRET" help:"Verify HS256 bearer tokens with this secret, and scope uploads by user"`
	SweepTTL      time.Duration `name:"sweep-ttl" env:"UPLOAD_SWEEP_TTL" default:"24h" help:"Remove staging areas idle for longer than this (0 disables)"`
	SweepInterval time.Duration `name:"sweep-interval" default:"1h" help:"How often to sweep staging areas"`
}

type SweepCommand struct {
	StoreFlags
	TTL time.Duration `name:"ttl" env:"UPLOAD_SWEEP_TTL" default:"24h" help:"Remove staging areas idle for longer than this"`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *RunServerCommand) Run(ctx *Globals) error {
	maxChunk, err := units.RAMInBytes(cmd.MaxChunk)
	if err != nil {
		return fmt.Errorf("invalid max chunk size %q: %w", cmd.MaxChunk, err)
	}

	// Export telemetry when an endpoint is set, otherwise the global
	// providers are no-ops
	var tracer trace.Tracer
	if cmd.OTelEndpoint != "" {
		provider, err := otel.NewProvider(cmd.OTelEndpoint, cmd.OTelEndpoint, "", cmd.OTelHeader, execName())
		if err != nil {
			return fmt.Errorf("failed to create telemetry provider: %w", err)
		}
		defer otel.ShutdownProvider(context.Background())
		tracer = provider.Tracer(schema.SchemaName)
	}

	// Create manager with the backend
	mgr, err := cmd.StoreFlags.open(ctx, tracer,
		manager.WithMaxChunkSize(maxChunk),
		manager.WithMeter(gootel.GetMeterProvider().Meter(schema.SchemaName)),
	)
	if err != nil {
		return err
	}
	defer mgr.Close()

	// Resolve the caller scope
	scope := httphandler.OpaqueScope
	if cmd.JWTSecret != "" {
		scope = httphandler.TokenScope([]byte(cmd.JWTSecret))
	}

	// Sweep abandoned uploads in the background
	if cmd.SweepTTL > 0 {
		go func() {
			if err := mgr.RunSweeper(ctx.ctx, cmd.SweepInterval, cmd.SweepTTL); err != nil {
				ctx.logger.ErrorContext(ctx.ctx, "sweeper stopped", "error", err)
			}
		}()
	}

	return cmd.serve(ctx, mgr, scope, maxChunk)
}

func (cmd *SweepCommand) Run(ctx *Globals) error {
	mgr, err := cmd.StoreFlags.open(ctx, nil)
	if err != nil {
		return err
	}
	defer mgr.Close()

	result, err := mgr.Sweep(ctx.ctx, cmd.TTL)
	if result != nil {
		ctx.logger.InfoContext(ctx.ctx, "sweep completed", "sessions", result.Sessions, "blobs", result.Blobs)
	}
	return err
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// open opens the backend and creates the upload manager, tracing both
// when tracer is not nil
func (flags StoreFlags) open(ctx *Globals, tracer trace.Tracer, opts ...manager.Opt) (*manager.Manager, error) {
	backendOpts := []backend.Opt{}
	if tracer != nil {
		backendOpts = append(backendOpts, backend.WithTracer(tracer))
		opts = append(opts, manager.WithTracer(tracer))
	}
	if flags.S3Endpoint != "" {
		backendOpts = append(backendOpts, backend.WithEndpoint(flags.S3Endpoint))
	}
	if flags.Anonymous {
		backendOpts = append(backendOpts, backend.WithAnonymous())
	}
	mgr, err := manager.New(ctx.ctx, append([]manager.Opt{
		manager.WithLogger(ctx.logger),
		manager.WithBackend(ctx.ctx, flags.Backend, backendOpts...),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create manager: %w", err)
	}
	return mgr, nil
}

// serve registers HTTP handlers and runs the server until context is done.
func (cmd *RunServerCommand) serve(ctx *Globals, mgr *manager.Manager, scope httphandler.ScopeFunc, maxChunk int64) error {
	// Create the router
	router, err := httprouter.NewRouter(ctx.ctx, http.NewServeMux(), cmd.Prefix, cmd.Origin, schema.SchemaName, version.Version())
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	// Register upload HTTP handlers
	if err := httphandler.RegisterHandlers(mgr, router, scope); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}

	// Create the HTTP server, and wrap the router with request middleware
	srv, err := httpserver.New(cmd.Addr, nil)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	srv.SetHandler(chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		otel.HTTPHandler(schema.SchemaName, ctx.logger),
	).Handler(router))

	ctx.logger.InfoContext(ctx.ctx, "upload server started",
		"version", version.Version(),
		"addr", cmd.Addr,
		"prefix", cmd.Prefix,
		"backend", mgr.Store().URL().String(),
		"maxChunk", units.BytesSize(float64(maxChunk)),
	)
	if err := srv.Run(ctx.ctx); err != nil {
		return err
	}
	ctx.logger.InfoContext(context.Background(), "upload server stopped")
	return nil
}
