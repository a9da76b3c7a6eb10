package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/timmy/flatsync/internal/storage"
)

// S3Source lists and fetches files from an S3-compatible bucket such as
// Polygon's flat files endpoint.
type S3Source struct {
	store storage.ObjectStorage
}

// NewS3Source wraps an object store as a source.
func NewS3Source(store storage.ObjectStorage) *S3Source {
	return &S3Source{store: store}
}

func (s *S3Source) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.store.Bucket(), prefix, err)
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *S3Source) Fetch(ctx context.Context, fileKey, dir string) (string, error) {
	local := filepath.Join(dir, path.Base(fileKey))
	if _, err := s.store.DownloadToFile(ctx, fileKey, local); err != nil {
		return "", &TransferError{
			Op:       "fetch",
			Key:      fileKey,
			NotFound: errors.Is(err, storage.ErrObjectNotFound),
			Err:      err,
		}
	}
	return local, nil
}
