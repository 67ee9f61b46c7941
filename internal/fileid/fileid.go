// Package fileid derives stable resource ids for files picked up from the inbox.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const prefix = "file-"

// ResourceID returns a stable resource id for the file at path within project. The same
// cleaned path in the same project always yields the same id, so a changed file replaces
// its earlier chunks instead of duplicating them.
func ResourceID(projectID, path string) string {
	h := sha256.New()
	h.Write([]byte(projectID))
	h.Write([]byte{0})
	h.Write([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(h.Sum(nil)[:16])
}

// IsFileResource reports whether id was produced by ResourceID.
func IsFileResource(id string) bool {
	return strings.HasPrefix(id, prefix) && len(id) == len(prefix)+32
}
