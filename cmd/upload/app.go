package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Packages
	kong "github.com/alecthomas/kong"
	client "github.com/mutablelogic/go-client"
	httpclient "github.com/mutablelogic/go-upload/pkg/httpclient"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type Globals struct {
	Endpoint string        `env:"UPLOAD_ENDPOINT" default:"http://localhost:8080/api/upload" help:"Service endpoint"`
	Token    string        `env:"UPLOAD_TOKEN" help:"Bearer token sent with uploads"`
	Timeout  time.Duration `default:"30s" help:"Client request timeout"`
	Debug    bool          `help:"Enable debug output"`

	vars   kong.Vars `kong:"-"` // Variables for kong
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

type App interface {
	Context() context.Context
	GetEndpoint() *url.URL
	GetDebug() bool
	Logger() *slog.Logger
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func NewApp(app Globals, vars kong.Vars) *Globals {
	// Set the vars
	app.vars = vars

	// Structured logging to stderr
	level := slog.LevelInfo
	if app.Debug {
		level = slog.LevelDebug
	}
	app.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Create the context
	// This context is cancelled when the process receives a SIGINT or SIGTERM
	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Return the app
	return &app
}

func (app *Globals) Close() error {
	app.cancel()
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// METHODS

func (app *Globals) Context() context.Context {
	return app.ctx
}

func (app *Globals) GetEndpoint() *url.URL {
	if url, err := url.Parse(app.Endpoint); err == nil {
		return url
	}
	return nil
}

func (app *Globals) GetDebug() bool {
	return app.Debug
}

func (app *Globals) Logger() *slog.Logger {
	return app.logger
}

// Client builds a download client from the global flags
func (app *Globals) Client() (*httpclient.Client, error) {
	opts := []client.ClientOpt{}
	if app.Debug {
		opts = append(opts, client.OptTrace(os.Stderr, false))
	}
	if app.Timeout > 0 {
		opts = append(opts, client.OptTimeout(app.Timeout))
	}
	return httpclient.New(app.Endpoint, opts...)
}
