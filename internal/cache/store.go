// Package cache provides the episode artifact cache: a blob store holding
// fully remuxed ADTS streams, and a coordinator that makes sure each artifact
// is built at most once no matter how many clients ask for it concurrently.
package cache

import (
	"context"
	"io"
)

// BlobStore is the persistence layer for finished artifacts. Implementations
// must be atomic on Put: a failed or abandoned upload must never become
// visible to Exists or Get.
type BlobStore interface {
	// Exists reports whether a complete artifact is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Get opens the artifact stored under key. The caller closes the
	// returned reader. Size is the artifact length in bytes.
	Get(ctx context.Context, key string) (rc io.ReadCloser, size int64, err error)

	// Put stores the artifact read from r under key. r is drained to EOF;
	// any error aborts the upload without publishing anything.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
}
