// Package blobstore abstracts where volume files live: a local directory,
// a MinIO deployment, or S3. The timeline only ever reads whole files
// front to back, so a blob is a sized sequential reader rather than a
// random-access handle.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for reading immutable volume files.
type BlobStore interface {
	// Open opens a blob for sequential reading.
	Open(ctx context.Context, name string) (Blob, error)
}

// Blob is a read-only handle to one volume file.
type Blob interface {
	io.Reader
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Downloader is an optional interface for stores that can fetch a whole
// blob more efficiently than a sequential read (e.g. ranged parallel
// downloads from object storage).
type Downloader interface {
	Download(ctx context.Context, name string) ([]byte, error)
}
