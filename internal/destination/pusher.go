// Package destination uploads fetched files to the destination bucket.
package destination

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/timmy/flatsync/internal/config"
	"github.com/timmy/flatsync/internal/logger"
	"github.com/timmy/flatsync/internal/source"
	"github.com/timmy/flatsync/internal/storage"
)

// Pusher uploads a local file under a destination key.
type Pusher interface {
	// Push fails with a *source.TransferError.
	Push(ctx context.Context, localPath, key string) error
}

// S3PusherConfig holds S3Pusher options.
type S3PusherConfig struct {
	KeyPrefix    string
	SkipExisting bool
}

// S3Pusher pushes to any S3-compatible bucket (Backblaze B2 by default).
type S3Pusher struct {
	store        storage.ObjectStorage
	keyPrefix    string
	skipExisting bool
}

// NewS3Pusher creates a new S3Pusher.
func NewS3Pusher(store storage.ObjectStorage, cfg *S3PusherConfig) *S3Pusher {
	if cfg == nil {
		cfg = &S3PusherConfig{}
	}
	return &S3Pusher{
		store:        store,
		keyPrefix:    strings.Trim(cfg.KeyPrefix, "/"),
		skipExisting: cfg.SkipExisting,
	}
}

// New builds the destination pusher from configuration.
func New(cfg *config.DestinationConfig) (*S3Pusher, error) {
	store, err := storage.NewDestinationStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination storage: %w", err)
	}
	return NewS3Pusher(store, &S3PusherConfig{
		KeyPrefix:    cfg.KeyPrefix,
		SkipExisting: cfg.SkipExisting,
	}), nil
}

// ObjectKey maps a source key to its destination key.
func (p *S3Pusher) ObjectKey(key string) string {
	if p.keyPrefix == "" {
		return key
	}
	return path.Join(p.keyPrefix, key)
}

// CheckBucket fails when the destination bucket cannot be reached with the
// configured credentials.
func (p *S3Pusher) CheckBucket(ctx context.Context) error {
	if err := p.store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("destination bucket %s: %w", p.store.Bucket(), err)
	}
	return nil
}

func (p *S3Pusher) Push(ctx context.Context, localPath, key string) error {
	objectKey := p.ObjectKey(key)

	if p.skipExisting {
		same, err := p.alreadyPresent(ctx, localPath, objectKey)
		if err != nil {
			return &source.TransferError{Op: "push", Key: objectKey, Err: err}
		}
		if same {
			logger.FromContext(ctx).WithField("object_key", objectKey).
				Info("Destination already has object with same size, skipping upload")
			return nil
		}
	}

	if err := p.store.UploadFile(ctx, objectKey, localPath); err != nil {
		return &source.TransferError{Op: "push", Key: objectKey, Err: err}
	}
	return nil
}

func (p *S3Pusher) alreadyPresent(ctx context.Context, localPath, objectKey string) (bool, error) {
	local, err := os.Stat(localPath)
	if err != nil {
		return false, err
	}
	remote, err := p.store.Stat(ctx, objectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return remote.Size == local.Size(), nil
}
