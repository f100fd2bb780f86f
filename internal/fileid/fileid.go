// Package fileid identifies local files and their contents so the watch
// folder can tell a new version of a file from one it already uploaded.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

const prefix = "sha256:"

// Key returns the map key for a watched path. Equivalent spellings of the
// same path yield the same key.
func Key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}

// Fingerprint returns a stable digest of a file version. Files that were too
// large to read are fingerprinted by size alone.
func Fingerprint(data []byte, size int64) string {
	if data == nil {
		return fmt.Sprintf("size:%d", size)
	}
	sum := sha256.Sum256(data)
	return prefix + hex.EncodeToString(sum[:])
}
