// Package blobstore abstracts the storage targets for backups and
// snapshot exports.
//
// A BlobStore holds named immutable blobs. The store ships four
// implementations: a local filesystem store backed by memory-mapped
// reads, an in-memory store for tests, an S3 store (with an optional
// DynamoDB commit pointer for concurrent publishers), and a MinIO
// store. Blob names use forward slashes on every backend.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
// The default maps to os.ErrNotExist so filesystem errors pass through.
var ErrNotFound = os.ErrNotExist

// CurrentBlobName is the well-known pointer blob naming the latest
// committed backup manifest. Stores with stronger primitives may
// intercept it for atomic commits.
const CurrentBlobName = "CURRENT"

// BlobStore is the interface for reading and writing named blobs.
type BlobStore interface {
	// Open opens an existing blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create creates a blob for streaming writes. The blob becomes
	// visible under its name when Close returns without error.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a small blob in one call.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix,
	// sorted lexicographically.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at offset off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// ReadRange returns a reader over [off, off+length). Ranges
	// extending past the end are clamped; an offset at or past the
	// end returns io.EOF.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)

	// Size returns the size of the blob in bytes.
	Size() int64

	// Close releases the handle.
	Close() error
}

// WritableBlob is a streaming write handle created by Create.
type WritableBlob interface {
	io.Writer

	// Sync flushes written data to stable storage where the backend
	// supports it; object stores commit only on Close.
	Sync() error

	// Close finalizes the blob and publishes it under its name.
	Close() error
}

// ReadAll reads the complete content of a named blob.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	r, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
