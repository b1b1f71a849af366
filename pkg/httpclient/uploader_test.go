package httpclient_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	// Packages
	httprouter "github.com/mutablelogic/go-server/pkg/httprouter"
	httpclient "github.com/mutablelogic/go-upload/pkg/httpclient"
	httphandler "github.com/mutablelogic/go-upload/pkg/httphandler"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

///////////////////////////////////////////////////////////////////////////////
// TEST SERVER

type testServer struct {
	*httptest.Server
	mgr *manager.Manager

	// fail returns true when a chunk request should get a 500 envelope
	mu     sync.Mutex
	fail   func(index string, attempt int) bool
	counts map[string]int
}

func newTestServer(t *testing.T, opts ...manager.Opt) *testServer {
	t.Helper()
	mgr, err := manager.New(context.Background(), append([]manager.Opt{
		manager.WithBackend(context.Background(), "mem://test"),
	}, opts...)...)
	require.NoError(t, err)

	router, err := httprouter.NewRouter(context.Background(), http.NewServeMux(), "/", "*", schema.SchemaName, "test")
	require.NoError(t, err)
	require.NoError(t, httphandler.RegisterHandlers(mgr, router, httphandler.OpaqueScope))

	srv := &testServer{mgr: mgr, counts: make(map[string]int)}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == schema.ChunkPath && srv.inject(w, r) {
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		mgr.Close()
	})
	return srv
}

// inject counts chunk attempts per index and fails those selected by fail
func (s *testServer) inject(w http.ResponseWriter, r *http.Request) bool {
	// Read the form from a copy, so the handler still sees the body
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	clone := r.Clone(r.Context())
	clone.Body = io.NopCloser(bytes.NewReader(body))
	if err := clone.ParseMultipartForm(1 << 20); err != nil {
		return false
	}
	index := clone.FormValue(schema.FieldChunkIndex)

	s.mu.Lock()
	s.counts[index]++
	attempt := s.counts[index]
	fail := s.fail
	s.mu.Unlock()

	if fail == nil || !fail(index, attempt) {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"code":500,"message":"storage unavailable","data":{"kind":"StorageWriteFailure"}}`))
	return true
}

func (s *testServer) attempts(index string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[index]
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

///////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_Uploader_UploadFile(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)
	data := randomBytes(t, 5<<10)

	var progress []int
	var recorded *schema.Artifact
	uploader, err := httpclient.NewUploader(srv.URL,
		httpclient.WithChunkSize(2<<10),
		httpclient.WithRetries(3, time.Millisecond),
		httpclient.WithProgress(func(done, total int) {
			assert.Equal(3, total)
			progress = append(progress, done)
		}),
		httpclient.WithRecorder(func(_ context.Context, artifact *schema.Artifact) error {
			recorded = artifact
			return nil
		}),
	)
	require.NoError(t, err)

	artifact, err := uploader.UploadFile(context.Background(), "resume.pdf", bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal("/files/resume.pdf", artifact.URL)
	assert.Equal(int64(len(data)), artifact.Size)
	assert.Equal([]int{1, 2, 3}, progress)
	assert.Equal(artifact, recorded)

	// The artifact is byte-equal to the source
	r, _, err := srv.mgr.ReadArtifact(context.Background(), artifact.Name)
	require.NoError(t, err)
	defer r.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(data, buf.Bytes())
}

func Test_Uploader_Concurrent(t *testing.T) {
	srv := newTestServer(t)
	data := randomBytes(t, 64<<10)

	uploader, err := httpclient.NewUploader(srv.URL, httpclient.WithChunkSize(4<<10), httpclient.WithConcurrency(4))
	require.NoError(t, err)
	artifact, err := uploader.UploadFile(context.Background(), "a.bin", bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), artifact.Size)
}

func Test_Uploader_RetryThenSucceed(t *testing.T) {
	srv := newTestServer(t)
	srv.fail = func(index string, attempt int) bool {
		return index == "1" && attempt == 1
	}
	data := randomBytes(t, 3<<10)

	uploader, err := httpclient.NewUploader(srv.URL, httpclient.WithChunkSize(1<<10), httpclient.WithRetries(3, time.Millisecond))
	require.NoError(t, err)
	_, err = uploader.UploadFile(context.Background(), "a.bin", bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, 2, srv.attempts("1"))
	assert.Equal(t, 1, srv.attempts("0"))
}

func Test_Uploader_BudgetExhausted(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)
	srv.fail = func(index string, _ int) bool {
		return index == "1"
	}
	data := randomBytes(t, 3<<10)

	merged := false
	uploader, err := httpclient.NewUploader(srv.URL,
		httpclient.WithChunkSize(1<<10),
		httpclient.WithRetries(3, time.Millisecond),
		httpclient.WithRecorder(func(context.Context, *schema.Artifact) error {
			merged = true
			return nil
		}),
	)
	require.NoError(t, err)
	_, err = uploader.UploadFile(context.Background(), "a.bin", bytes.NewReader(data), int64(len(data)))

	var uerr *schema.Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(schema.ChunkUploadFailed, uerr.Kind)
	require.NotNil(t, uerr.Index)
	assert.Equal(1, *uerr.Index)
	assert.Equal(schema.StorageWriteFailure, schema.ErrorKind(uerr.Unwrap()))
	assert.Equal(3, srv.attempts("1"))
	assert.Zero(srv.attempts("2"))
	assert.False(merged)

	// Nothing was published
	_, err = srv.mgr.StatArtifact(context.Background(), "a.bin")
	assert.Equal(schema.NotFound, schema.ErrorKind(err))
}

func Test_Uploader_ClientErrorNotRetried(t *testing.T) {
	srv := newTestServer(t, manager.WithMaxChunkSize(512))
	data := randomBytes(t, 2<<10)

	uploader, err := httpclient.NewUploader(srv.URL, httpclient.WithChunkSize(1<<10), httpclient.WithRetries(3, time.Millisecond))
	require.NoError(t, err)
	_, err = uploader.UploadFile(context.Background(), "a.bin", bytes.NewReader(data), int64(len(data)))

	var uerr *schema.Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, schema.ChunkUploadFailed, uerr.Kind)
	assert.Equal(t, schema.ChunkTooLarge, schema.ErrorKind(uerr.Unwrap()))
	assert.Equal(t, 1, srv.attempts("0"))
}

func Test_Uploader_EnvelopeCode(t *testing.T) {
	// Transport status 200, but a failed envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":409,"message":"busy","data":{"kind":"MergeInProgress"}}`))
	}))
	defer srv.Close()

	uploader, err := httpclient.NewUploader(srv.URL, httpclient.WithRetries(1, 0))
	require.NoError(t, err)
	_, err = uploader.UploadFile(context.Background(), "a.bin", strings.NewReader("data"), 4)
	assert.Equal(t, schema.ChunkUploadFailed, schema.ErrorKind(err))
	assert.ErrorIs(t, err, schema.NewError(schema.MergeInProgress, ""))
}

func Test_Uploader_Validation(t *testing.T) {
	srv := newTestServer(t)
	uploader, err := httpclient.NewUploader(srv.URL, httpclient.WithMaxFileSize(10))
	require.NoError(t, err)

	for _, tt := range []struct {
		name string
		size int64
	}{
		{"empty.pdf", 0},
		{"large.pdf", 11},
		{"", 5},
		{"a/b.pdf", 5},
	} {
		_, err := uploader.UploadFile(context.Background(), tt.name, strings.NewReader(strings.Repeat("x", int(tt.size))), tt.size)
		assert.Equal(t, schema.MalformedRequest, schema.ErrorKind(err), tt.name)
	}
	assert.Zero(t, srv.attempts("0"))

	_, err = httpclient.NewUploader("ftp://localhost")
	assert.Error(t, err)
	_, err = httpclient.NewUploader(srv.URL, httpclient.WithRetries(0, 0))
	assert.Error(t, err)
}

func Test_Uploader_Cancelled(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	var sent atomic.Int32

	uploader, err := httpclient.NewUploader(srv.URL,
		httpclient.WithChunkSize(1<<10),
		httpclient.WithProgress(func(done, _ int) {
			sent.Add(1)
			if done == 2 {
				cancel()
			}
		}),
	)
	require.NoError(t, err)

	data := randomBytes(t, 8<<10)
	_, err = uploader.UploadFile(ctx, "a.bin", bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, sent.Load(), int32(8))
}

func Test_Uploader_UploadPathAndAbort(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)
	path := filepath.Join(t.TempDir(), "cover letter.png")
	require.NoError(t, os.WriteFile(path, randomBytes(t, 100), 0o600))

	uploader, err := httpclient.NewUploader(srv.URL, httpclient.WithToken("secret"))
	require.NoError(t, err)
	artifact, err := uploader.UploadPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal("/files/cover%20letter.png", artifact.URL)
	assert.Equal("image/png", artifact.ContentType)

	// Directories are rejected
	_, err = uploader.UploadPath(context.Background(), t.TempDir())
	assert.Equal(schema.MalformedRequest, schema.ErrorKind(err))

	// Abort is idempotent
	assert.NoError(uploader.Abort(context.Background(), "never-sent.pdf"))
}

func Test_Uploader_MergeErrorEnvelope(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)
	uploader, err := httpclient.NewUploader(srv.URL)
	require.NoError(t, err)

	// A failed envelope with a 4xx status keeps its error kind and index
	_, err = uploader.Merge(context.Background(), "never-sent.pdf", 2)
	assert.Equal(schema.IncompleteUpload, schema.ErrorKind(err))
	if uerr := schema.AsError(err, ""); assert.NotNil(uerr.Index) {
		assert.Equal(0, *uerr.Index)
	}

	// A malformed request is reported by kind too
	_, err = uploader.Merge(context.Background(), "a/b.pdf", 1)
	assert.Equal(schema.MalformedRequest, schema.ErrorKind(err))
}

func Test_Uploader_MergeEnvelopeCode(t *testing.T) {
	// Transport status 200 on merge, but a failed envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":409,"message":"busy","data":{"kind":"MergeInProgress"}}`))
	}))
	defer srv.Close()

	uploader, err := httpclient.NewUploader(srv.URL)
	require.NoError(t, err)
	_, err = uploader.Merge(context.Background(), "a.bin", 1)
	assert.Equal(t, schema.MergeInProgress, schema.ErrorKind(err))
	assert.Equal(t, schema.MergeInProgress, schema.ErrorKind(uploader.Abort(context.Background(), "a.bin")))
}

func Test_Uploader_PrefixedEndpoint(t *testing.T) {
	assert := assert.New(t)
	mgr, err := manager.New(context.Background(), manager.WithBackend(context.Background(), "mem://test"))
	require.NoError(t, err)
	defer mgr.Close()

	router, err := httprouter.NewRouter(context.Background(), http.NewServeMux(), "/api/upload", "*", schema.SchemaName, "test")
	require.NoError(t, err)
	require.NoError(t, httphandler.RegisterHandlers(mgr, router, httphandler.OpaqueScope))

	// Record the authorization sent with each request path
	var mu sync.Mutex
	auth := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth[r.URL.Path] = r.Header.Get("Authorization")
		mu.Unlock()
		router.ServeHTTP(w, r)
	}))
	defer srv.Close()

	endpoint := srv.URL + "/api/upload/"
	uploader, err := httpclient.NewUploader(endpoint, httpclient.WithToken("secret"), httpclient.WithChunkSize(10))
	require.NoError(t, err)
	data := randomBytes(t, 25)
	artifact, err := uploader.UploadFile(context.Background(), "cover letter.txt", bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal("/files/cover%20letter.txt", artifact.URL)

	mu.Lock()
	assert.Equal("Bearer secret", auth["/api/upload"+schema.ChunkPath])
	assert.Equal("Bearer secret", auth["/api/upload"+schema.MergePath])
	mu.Unlock()

	// Download the artifact from below the same prefix
	c, err := httpclient.New(endpoint)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = c.ReadArtifact(context.Background(), artifact.URL, &buf)
	require.NoError(t, err)
	assert.Equal(data, buf.Bytes())

	// Abort goes below the prefix too
	assert.NoError(uploader.Abort(context.Background(), "cover letter.txt"))
	mu.Lock()
	assert.Equal("Bearer secret", auth["/api/upload"+schema.AbortPath])
	mu.Unlock()
}
