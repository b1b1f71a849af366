package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	// Packages
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	client "github.com/mutablelogic/go-client"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	errgroup "golang.org/x/sync/errgroup"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Uploader splits files into chunks, sends each chunk with a fixed retry
// budget, and then asks the server to merge them
type Uploader struct {
	*opt
	endpoint *url.URL
	client   *retryablehttp.Client
	rpc      *client.Client
}

// envelopeUnmarshaler decodes the data of a successful envelope into v
type envelopeUnmarshaler struct {
	v any
}

// envelopeTransport returns the error in a failed envelope, so that the
// envelope rather than the base client reports non-2xx responses
type envelopeTransport struct {
	http.RoundTripper
}

var _ client.Unmarshaler = (*envelopeUnmarshaler)(nil)
var _ http.RoundTripper = (*envelopeTransport)(nil)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// maxResponseSize bounds the envelope read from any response
const maxResponseSize = 1 << 20

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewUploader creates an uploader for the API at endpoint, e.g.
// "http://localhost:8080/api/upload".
func NewUploader(endpoint string, opts ...Opt) (*Uploader, error) {
	self := new(Uploader)

	// Set the options
	if o, err := applyOpts(opts...); err != nil {
		return nil, err
	} else {
		self.opt = o
	}

	// Parse the endpoint
	if u, err := url.Parse(endpoint); err != nil {
		return nil, err
	} else if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/")
		self.endpoint = u
	}

	// Fixed delay between attempts. The default policy retries connection
	// errors, 429 and 5xx responses, and never 4xx.
	self.client = retryablehttp.NewClient()
	self.client.RetryMax = self.retries - 1
	self.client.Backoff = func(_, _ time.Duration, _ int, _ *http.Response) time.Duration {
		return self.retryDelay
	}
	self.client.CheckRetry = retryablehttp.DefaultRetryPolicy
	self.client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	self.client.Logger = self.logger
	if self.httpClient != nil {
		self.client.HTTPClient = self.httpClient
	}

	// Merge and abort are sent once through the base client
	rpcOpts := []client.ClientOpt{
		client.OptEndpoint(self.endpoint.String()),
		client.OptTransport(func(next http.RoundTripper) http.RoundTripper {
			return &envelopeTransport{next}
		}),
	}
	if self.token != "" {
		rpcOpts = append(rpcOpts, client.OptReqToken(client.Token{Scheme: client.Bearer, Value: self.token}))
	}
	if self.httpClient != nil {
		if self.httpClient.Transport != nil {
			rpcOpts = append(rpcOpts, client.OptTransport(func(http.RoundTripper) http.RoundTripper {
				return self.httpClient.Transport
			}))
		}
		if self.httpClient.Timeout > 0 {
			rpcOpts = append(rpcOpts, client.OptTimeout(self.httpClient.Timeout))
		}
	}
	if rpc, err := client.New(rpcOpts...); err != nil {
		return nil, err
	} else {
		self.rpc = rpc
	}

	// Return success
	return self, nil
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// UploadPath uploads a local file under its base name
func (u *Uploader) UploadPath(ctx context.Context, path string) (*schema.Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	} else if !info.Mode().IsRegular() {
		return nil, schema.NewError(schema.MalformedRequest, "%q is not a regular file", path)
	}
	return u.UploadFile(ctx, filepath.Base(path), f, info.Size())
}

// UploadFile sends size bytes of r as chunks, then merges them into an
// artifact. The recorder, if set, is called with the artifact. A chunk
// which cannot be delivered within the retry budget fails the upload
// with ChunkUploadFailed, and nothing is merged.
func (u *Uploader) UploadFile(ctx context.Context, name string, r io.ReaderAt, size int64) (*schema.Artifact, error) {
	if err := schema.ValidateFileName(name); err != nil {
		return nil, err
	} else if size <= 0 {
		return nil, schema.NewError(schema.MalformedRequest, "%q is empty", name)
	} else if size > u.maxFileSize {
		return nil, schema.NewError(schema.MalformedRequest, "%q is %d bytes, larger than %d", name, size, u.maxFileSize)
	}
	total := int((size + u.chunkSize - 1) / u.chunkSize)
	if err := schema.ValidateTotalCount(total); err != nil {
		return nil, err
	}

	// Send the chunks
	if err := u.sendChunks(ctx, name, r, size, total); err != nil {
		return nil, err
	}

	// Merge them
	artifact, err := u.Merge(ctx, name, total)
	if err != nil {
		return nil, err
	}
	u.logger.InfoContext(ctx, "file uploaded", "fileName", name, "url", artifact.URL, "chunks", total, "bytes", size)

	// Create the record
	if u.recorder != nil {
		if err := u.recorder(ctx, artifact); err != nil {
			return artifact, err
		}
	}

	// Return success
	return artifact, nil
}

// Merge asks the server to reassemble the chunks of a file. It is sent
// once, without retry.
func (u *Uploader) Merge(ctx context.Context, name string, total int) (*schema.Artifact, error) {
	var artifact schema.Artifact
	if err := u.postJSON(ctx, schema.MergePath, schema.MergeRequest{FileName: name, Chunks: schema.Count(total)}, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// Abort asks the server to discard the chunks of a file
func (u *Uploader) Abort(ctx context.Context, name string) error {
	return u.postJSON(ctx, schema.AbortPath, schema.AbortRequest{FileName: name}, nil)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// sendChunks dispatches every chunk with bounded concurrency. Dispatch
// stops at the first failure or when the context is cancelled.
func (u *Uploader) sendChunks(ctx context.Context, name string, r io.ReaderAt, size int64, total int) error {
	var mu sync.Mutex
	var done int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for index := range total {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			offset := int64(index) * u.chunkSize
			data := make([]byte, min(u.chunkSize, size-offset))
			if n, err := r.ReadAt(data, offset); n < len(data) {
				return schema.NewError(schema.MalformedRequest, "reading chunk %d of %q", index, name).WithIndex(index).Wrap(err)
			}
			if err := u.sendChunk(gctx, name, index, total, data); err != nil {
				return err
			}
			if u.progress != nil {
				mu.Lock()
				defer mu.Unlock()
				done++
				u.progress(done, total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// A cancelled context may have stopped dispatch without any failure
	return ctx.Err()
}

// sendChunk posts one chunk through the retrying client
func (u *Uploader) sendChunk(ctx context.Context, name string, index, total int, data []byte) error {
	body, contentType, err := chunkPayload(name, index, total, data)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequest(http.MethodPost, u.url(schema.ChunkPath), body)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", contentType)
	u.authorize(req.Request)

	// Failures after the retry budget, and any failed envelope, abort the upload
	failed := func(cause error) error {
		err := schema.NewError(schema.ChunkUploadFailed, "chunk %d of %q", index, name).WithIndex(index).Wrap(cause)
		var uerr *schema.Error
		if errors.As(cause, &uerr) {
			err.UploadKey = uerr.UploadKey
		}
		return err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return failed(err)
	}
	defer resp.Body.Close()

	var ack schema.ChunkAck
	if err := decodeEnvelope(resp.Body, resp.Status, &ack); err != nil {
		return failed(err)
	}
	u.logger.DebugContext(ctx, "chunk sent", "fileName", name, "index", index, "total", total, "bytes", len(data))
	return nil
}

// postJSON sends a request once, and decodes the response envelope into v
func (u *Uploader) postJSON(ctx context.Context, path string, in, v any) error {
	req, err := client.NewJSONRequest(in)
	if err != nil {
		return err
	}
	return u.rpc.DoWithContext(ctx, req, &envelopeUnmarshaler{v}, client.OptPath(pathSegments(path)...))
}

func (u *Uploader) url(path string) string {
	return u.endpoint.JoinPath(path).String()
}

func (u *Uploader) authorize(req *http.Request) {
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}
}

// chunkPayload returns a multipart body with the chunk and its fields
func chunkPayload(name string, index, total int, data []byte) ([]byte, string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, field := range [][2]string{
		{schema.FieldFileName, name},
		{schema.FieldChunkIndex, strconv.Itoa(index)},
		{schema.FieldChunks, strconv.Itoa(total)},
	} {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return nil, "", err
		}
	}
	part, err := form.CreateFormFile(schema.FieldChunk, "blob")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), form.FormDataContentType(), nil
}

// decodeEnvelope reads a response envelope. The envelope code decides
// success, whatever the transport status.
func decodeEnvelope(r io.Reader, status string, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, maxResponseSize))
	if err != nil {
		return err
	}
	var envelope schema.RawEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Code == 0 {
		return schema.NewError(schema.StorageWriteFailure, "unexpected response %q", status)
	}
	if v == nil {
		return envelope.Err()
	}
	return envelope.Decode(v)
}

///////////////////////////////////////////////////////////////////////////////
// INTERFACE IMPLEMENTATION

func (e *envelopeUnmarshaler) Unmarshal(_ http.Header, r io.Reader) error {
	return decodeEnvelope(r, "", e.v)
}

func (t *envelopeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.RoundTripper.RoundTrip(req)
	if err != nil || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return resp, err
	}
	defer resp.Body.Close()
	if err := decodeEnvelope(resp.Body, resp.Status, nil); err != nil {
		return nil, err
	}
	return nil, schema.NewError(schema.StorageWriteFailure, "unexpected response %q", resp.Status)
}
