package httphandler_test

import (
	"bytes"
	"net/http"
	"testing"

	// Packages
	httphandler "github.com/mutablelogic/go-upload/pkg/httphandler"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func Test_mergePost(t *testing.T) {
	assert := assert.New(t)
	mux := serveMux(t, newTestManager(t), httphandler.OpaqueScope)
	data := bytes.Repeat([]byte("0123456789"), 10)

	envelope := upload(t, mux, "", "report.pdf", data, 30)
	require.True(t, envelope.Ok(), envelope.Message)

	var artifact schema.Artifact
	require.NoError(t, envelope.Decode(&artifact))
	assert.Equal("/files/report.pdf", artifact.URL)
	assert.Equal("report.pdf", artifact.FileName)
	assert.Equal(int64(len(data)), artifact.Size)
	assert.Equal("application/pdf", artifact.ContentType)
}

func Test_mergePost_stringCount(t *testing.T) {
	mux := serveMux(t, newTestManager(t), httphandler.OpaqueScope)
	for i, part := range []string{"ab", "cd"} {
		rw, _ := serve(t, mux, chunkRequest(t, "a.txt", []string{"0", "1"}[i], "2", []byte(part)), "")
		require.Equal(t, http.StatusOK, rw.Code)
	}

	rw, envelope := serve(t, mux, jsonRequest(t, schema.MergePath, map[string]any{
		"fileName": "a.txt",
		"chunks":   "2",
	}), "")
	assert.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	assert.True(t, envelope.Ok())
}

func Test_mergePost_incomplete(t *testing.T) {
	assert := assert.New(t)
	mux := serveMux(t, newTestManager(t), httphandler.OpaqueScope)
	for _, index := range []string{"0", "2"} {
		rw, _ := serve(t, mux, chunkRequest(t, "a.bin", index, "3", []byte("x")), "")
		require.Equal(t, http.StatusOK, rw.Code)
	}

	rw, envelope := serve(t, mux, jsonRequest(t, schema.MergePath, map[string]any{
		"fileName": "a.bin",
		"chunks":   3,
	}), "")
	assert.Equal(http.StatusBadRequest, rw.Code)
	assert.Equal(http.StatusBadRequest, envelope.Code)

	var uerr *schema.Error
	require.ErrorAs(t, envelope.Err(), &uerr)
	assert.Equal(schema.IncompleteUpload, uerr.Kind)
	require.NotNil(t, uerr.Index)
	assert.Equal(1, *uerr.Index)
}

func Test_mergePost_malformed(t *testing.T) {
	mux := serveMux(t, newTestManager(t), httphandler.OpaqueScope)
	for _, body := range []map[string]any{
		{"fileName": "a.bin"},
		{"fileName": "a.bin", "chunks": "-1"},
		{"fileName": "a.bin", "chunks": "two"},
		{"chunks": 1},
	} {
		rw, envelope := serve(t, mux, jsonRequest(t, schema.MergePath, body), "")
		assert.Equal(t, http.StatusBadRequest, rw.Code, body)
		assert.Equal(t, schema.MalformedRequest, schema.ErrorKind(envelope.Err()), body)
	}
}

func Test_abortPost(t *testing.T) {
	assert := assert.New(t)
	mgr := newTestManager(t)
	mux := serveMux(t, mgr, httphandler.OpaqueScope)

	rw, _ := serve(t, mux, chunkRequest(t, "a.bin", "0", "2", []byte("x")), "")
	require.Equal(t, http.StatusOK, rw.Code)

	rw, envelope := serve(t, mux, jsonRequest(t, schema.AbortPath, map[string]any{"fileName": "a.bin"}), "")
	assert.Equal(http.StatusOK, rw.Code)
	assert.True(envelope.Ok())

	areas, err := mgr.Store().ListStaging(t.Context())
	assert.NoError(err)
	assert.Empty(areas)

	// Aborting again is not an error
	rw, _ = serve(t, mux, jsonRequest(t, schema.AbortPath, map[string]any{"fileName": "a.bin"}), "")
	assert.Equal(http.StatusOK, rw.Code)
}
