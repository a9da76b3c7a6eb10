package source

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the remote file does not exist (yet).
	ErrNotFound = errors.New("remote file not found")

	// ErrTransfer marks any failed transfer, including ErrNotFound.
	ErrTransfer = errors.New("transfer failed")

	// ErrListUnsupported is returned by sources that cannot enumerate keys.
	ErrListUnsupported = errors.New("source does not support listing")
)

// TransferError is returned by fetch and push capabilities. It always
// matches ErrTransfer and, for missing files, ErrNotFound.
type TransferError struct {
	Op       string
	Key      string
	NotFound bool
	Err      error
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Op, e.Key)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Is(target error) bool {
	switch target {
	case ErrTransfer:
		return true
	case ErrNotFound:
		return e.NotFound
	default:
		return false
	}
}

// Lister enumerates file keys available at the source.
type Lister interface {
	// ListKeys returns every key under prefix.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - prefix: key prefix to list under.
	// Returns:
	//   - []string: keys in lexical order.
	//   - error: ErrListUnsupported or a listing failure.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Fetcher downloads one file to local disk.
type Fetcher interface {
	// Fetch writes fileKey into dir.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - fileKey: remote object key.
	//   - dir: local directory for the temporary copy.
	// Returns:
	//   - string: path of the downloaded file.
	//   - error: a *TransferError on failure.
	Fetch(ctx context.Context, fileKey, dir string) (string, error)
}
