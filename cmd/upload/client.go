package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	// Packages
	units "github.com/docker/go-units"
	httpclient "github.com/mutablelogic/go-upload/pkg/httpclient"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ClientCommands struct {
	Upload UploadCommand `cmd:"" name:"upload" help:"Upload files in chunks." group:"CLIENT"`
	Get    GetCommand    `cmd:"" name:"get" help:"Download a published file." group:"CLIENT"`
	Abort  AbortCommand  `cmd:"" name:"abort" help:"Discard the staged chunks of a file." group:"CLIENT"`
}

type UploadCommand struct {
	Paths       []string      `arg:"" type:"existingfile" help:"Files to upload"`
	ChunkSize   string        `name:"chunk-size" default:"1MiB" help:"Size of each chunk"`
	MaxFileSize string        `name:"max-file-size" default:"20MiB" help:"Largest file which may be uploaded"`
	Retries     int           `name:"retries" default:"3" help:"Attempts per chunk, including the first"`
	RetryDelay  time.Duration `name:"retry-delay" default:"1s" help:"Delay between attempts"`
	Concurrency int           `name:"concurrency" default:"1" help:"Chunks in flight at once"`
}

type GetCommand struct {
	Locator string `arg:"" help:"Public locator (/files/...) or file name"`
	Output  string `name:"output" short:"o" type:"path" help:"Write to this file instead of stdout"`
}

type AbortCommand struct {
	FileName string `arg:"" help:"Declared file name of the upload"`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *UploadCommand) Run(ctx *Globals) error {
	chunkSize, err := units.RAMInBytes(cmd.ChunkSize)
	if err != nil {
		return fmt.Errorf("invalid chunk size %q: %w", cmd.ChunkSize, err)
	}
	maxFileSize, err := units.RAMInBytes(cmd.MaxFileSize)
	if err != nil {
		return fmt.Errorf("invalid max file size %q: %w", cmd.MaxFileSize, err)
	}

	// Report progress at most once a second
	var name string
	now := time.Now()
	uploader, err := httpclient.NewUploader(ctx.Endpoint,
		httpclient.WithToken(ctx.Token),
		httpclient.WithLogger(ctx.logger),
		httpclient.WithChunkSize(chunkSize),
		httpclient.WithMaxFileSize(maxFileSize),
		httpclient.WithRetries(cmd.Retries, cmd.RetryDelay),
		httpclient.WithConcurrency(cmd.Concurrency),
		httpclient.WithProgress(func(done, total int) {
			if done == total || time.Since(now) > time.Second {
				fmt.Fprintf(os.Stderr, "%s: %d/%d chunks (%.1f%%)\r", name, done, total, float64(done)/float64(total)*100)
				now = time.Now()
			}
		}),
	)
	if err != nil {
		return err
	}

	// Upload each file in turn
	artifacts := make([]*schema.Artifact, 0, len(cmd.Paths))
	for _, path := range cmd.Paths {
		name = filepath.Base(path)
		artifact, err := uploader.UploadPath(ctx.ctx, path)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		artifacts = append(artifacts, artifact)
	}
	return prettyJSON(artifacts)
}

func (cmd *GetCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if cmd.Output != "" {
		f, err := os.Create(cmd.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	artifact, err := c.ReadArtifact(ctx.ctx, cmd.Locator, w)
	if err != nil {
		return err
	}
	ctx.logger.InfoContext(ctx.ctx, "downloaded", "url", artifact.URL, "size", units.HumanSize(float64(artifact.Size)), "contentType", artifact.ContentType)
	return nil
}

func (cmd *AbortCommand) Run(ctx *Globals) error {
	uploader, err := httpclient.NewUploader(ctx.Endpoint, httpclient.WithToken(ctx.Token), httpclient.WithLogger(ctx.logger))
	if err != nil {
		return err
	}
	return uploader.Abort(ctx.ctx, cmd.FileName)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func prettyJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
