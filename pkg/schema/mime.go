package schema

import (
	"path"
	"strings"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var artifactTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".doc":  "application/msword",
	".docx": "application/msword",
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ContentTypeForName returns the content type served for an artifact name.
// Unknown extensions are served as generic binary.
func ContentTypeForName(name string) string {
	if ct, ok := artifactTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return types.ContentTypeBinary
}
