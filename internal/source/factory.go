package source

import (
	"fmt"

	"github.com/timmy/flatsync/internal/config"
	"github.com/timmy/flatsync/internal/storage"
)

// Source is a full source capability.
type Source interface {
	Lister
	Fetcher
}

// New builds the source selected by cfg.Type.
func New(cfg *config.SourceConfig) (Source, error) {
	switch cfg.Type {
	case "s3", "":
		store, err := storage.NewSourceStorage(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create source storage: %w", err)
		}
		return NewS3Source(store), nil
	case "http":
		return NewHTTPSource(&HTTPConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.AccessKey,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}
