// Package storage defines the Storage interface for tenant resource files and the
// registry of backends.
//
// Backends register themselves with the factory from an init() function in their own
// package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(cfg)
//	    })
//	}
//
// cmd/server blank-imports each backend it ships so that init() runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned by Open when no object exists under the key
var ErrNotFound = errors.New("object not found")

// Storage stores resource files under opaque keys
type Storage interface {
	// Put stores the content of r under key and returns its size and SHA-256
	Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error)

	// Open returns a reader for the object stored under key
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Remove deletes the object. Removing a missing object is not an error.
	Remove(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)

	// SignedURL returns a time-limited direct download URL, or "" when the backend
	// has no such URL and downloads must be streamed through the API.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Object describes a stored file
type Object struct {
	Key         string
	Size        int64
	Checksum    string
	ContentType string
}

// ResourceKey builds the key for a tenant resource file. The file name is reduced to
// its base name so callers cannot escape the tenant prefix.
func ResourceKey(orgID, resourceID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "file"
	}
	return fmt.Sprintf("tenants/%s/resources/%s/%s", orgID, resourceID, name)
}
