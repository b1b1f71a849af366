package version_test

import (
	"encoding/json"
	"testing"

	// Packages
	version "github.com/mutablelogic/go-upload/pkg/version"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func Test_Version(t *testing.T) {
	t.Run("Tag", func(t *testing.T) {
		t.Cleanup(func() { version.GitTag = "" })
		version.GitTag = "v1.2.3"
		assert.Equal(t, "v1.2.3", version.Version())
	})
	t.Run("Branch", func(t *testing.T) {
		t.Cleanup(func() { version.GitBranch = "" })
		version.GitBranch = "main"
		assert.Equal(t, "main", version.Version())
	})
	t.Run("Fallback", func(t *testing.T) {
		assert.NotEmpty(t, version.Version())
	})
}

func Test_JSON(t *testing.T) {
	t.Cleanup(func() { version.GitHash = "" })
	version.GitHash = "abcdef"

	var info version.Info
	require.NoError(t, json.Unmarshal(version.JSON("upload"), &info))
	assert.Equal(t, "upload", info.Name)
	assert.Equal(t, "abcdef", info.Hash)
	assert.NotEmpty(t, info.Compiler)
	assert.NotEmpty(t, info.Version)
}
