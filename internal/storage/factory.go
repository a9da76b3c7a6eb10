package storage

import (
	"strings"

	"github.com/timmy/flatsync/internal/config"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - cfg: storage configuration including endpoint, credentials, and bucket.
//
// Returns:
//   - ObjectStorage: initialized storage client implementation.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(cfg *S3Config) (ObjectStorage, error) {
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}

	return NewS3Storage(cfg)
}

// NewSourceStorage builds the client for the source flat-file bucket.
func NewSourceStorage(cfg *config.SourceConfig) (ObjectStorage, error) {
	return NewStorage(&S3Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Timeout:   cfg.Timeout,
	})
}

// NewDestinationStorage builds the client for the destination bucket. The
// region falls back to the one encoded in B2-style endpoints.
func NewDestinationStorage(cfg *config.DestinationConfig) (ObjectStorage, error) {
	region := cfg.Region
	if region == "" {
		region = config.InferRegion(cfg.Endpoint)
	}
	return NewStorage(&S3Config{
		Type:      StorageType(cfg.Type),
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    region,
		Timeout:   cfg.Timeout,
	})
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "backblazeb2.com"):
		return StorageTypeB2
	case strings.Contains(endpoint, "polygon.io"):
		return StorageTypePolygon
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
