package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage defines the interface for object storage operations
type ObjectStorage interface {
	// Bucket returns the bucket the client is bound to
	Bucket() string

	// EnsureBucket verifies the bucket is reachable, creating it where the provider allows
	EnsureBucket(ctx context.Context) error

	// List returns every object under prefix, following pagination
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Stat returns object metadata or ErrObjectNotFound
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// Download streams an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// DownloadToFile writes an object to path and returns the bytes written
	DownloadToFile(ctx context.Context, key, path string) (int64, error)

	// Upload uploads an object from a reader
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// UploadFile uploads the file at path under key
	UploadFile(ctx context.Context, key, path string) error
}
