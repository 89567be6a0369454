// Package storage adapts the worker's Download/Upload capability to two
// interchangeable backends: an S3-style object store and a WebDAV server.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Download when the logical path does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Backend is the capability the process-task use case is written against.
// Neither implementation creates directories implicitly, and both are
// content-agnostic.
type Backend interface {
	// Download returns a caller-closed reader for the blob at path.
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	// Upload writes body to path, consuming it fully.
	Upload(ctx context.Context, path string, body io.Reader) error
}
