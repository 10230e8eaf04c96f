// Package artifacts stores search images under content-addressed keys.
//
// A key is the hex SHA-256 of the bytes followed by an extension derived
// from the detected content type, e.g. "9f86d0...0f00a08.jpg". Keys are
// therefore stable for identical images and let readers verify content.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Store is an artifact backend.
type Store interface {
	// Put writes data under key. Writing an existing key replaces it.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns a *common.StorageError with kind ErrArtifactMissing when
	// key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Ext returns the file extension for data, ".bin" for unknown content.
func Ext(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if ext, ok := extensions[ct]; ok {
		return ext
	}
	return ".bin"
}

// Key returns the content-addressed key for data.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + Ext(data)
}

// Verify reports whether data still hashes to key.
func Verify(key string, data []byte) bool {
	hash, _, _ := strings.Cut(key, ".")
	sum := sha256.Sum256(data)
	return hash == hex.EncodeToString(sum[:])
}

// validKey rejects anything that is not a bare key, so a key read from the
// index can never address a path outside the store.
func validKey(key string) bool {
	hash, ext, ok := strings.Cut(key, ".")
	if !ok || len(hash) != sha256.Size*2 || ext == "" {
		return false
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return false
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
