package httpclient_test

import (
	"bytes"
	"context"
	"testing"

	// Packages
	httpclient "github.com/mutablelogic/go-upload/pkg/httpclient"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func Test_Client_ReadArtifact(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)
	data := randomBytes(t, 3000)

	uploader, err := httpclient.NewUploader(srv.URL, httpclient.WithChunkSize(1000))
	require.NoError(t, err)
	uploaded, err := uploader.UploadFile(context.Background(), "简历.pdf", bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	c, err := httpclient.New(srv.URL)
	require.NoError(t, err)

	// Download by public locator, and by name
	for _, locator := range []string{uploaded.URL, uploaded.Name} {
		var buf bytes.Buffer
		artifact, err := c.ReadArtifact(context.Background(), locator, &buf)
		require.NoError(t, err, locator)
		assert.Equal(data, buf.Bytes())
		assert.Equal(uploaded.URL, artifact.URL)
		assert.Equal(int64(len(data)), artifact.Size)
		assert.Equal("application/pdf", artifact.ContentType)
		assert.False(artifact.ModTime.IsZero())
	}

	artifact, err := c.StatArtifact(context.Background(), uploaded.URL)
	require.NoError(t, err)
	assert.Equal(int64(len(data)), artifact.Size)
}

func Test_Client_ReadArtifact_notFound(t *testing.T) {
	srv := newTestServer(t)
	c, err := httpclient.New(srv.URL)
	require.NoError(t, err)

	_, err = c.ReadArtifact(context.Background(), "/files/missing.pdf", &bytes.Buffer{})
	assert.Error(t, err)

	_, err = c.ReadArtifact(context.Background(), "", &bytes.Buffer{})
	assert.Equal(t, schema.MalformedRequest, schema.ErrorKind(err))
}
