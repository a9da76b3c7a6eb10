package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPConfig holds configuration for an HTTP file server source.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPSource fetches files over HTTP(S) from <base url>/<file key>.
// It cannot list keys.
type HTTPSource struct {
	client  *resty.Client
	baseURL string
}

// NewHTTPSource creates a new HTTP source.
// Parameters:
//   - cfg: base URL, optional bearer key and request timeout.
//
// Returns:
//   - *HTTPSource: initialized client wrapper.
func NewHTTPSource(cfg *HTTPConfig) *HTTPSource {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	client.SetTimeout(timeout)

	return &HTTPSource{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

func (s *HTTPSource) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	return nil, ErrListUnsupported
}

func (s *HTTPSource) Fetch(ctx context.Context, fileKey, dir string) (string, error) {
	url := s.baseURL + "/" + strings.TrimPrefix(fileKey, "/")

	resp, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return "", &TransferError{Op: "fetch", Key: fileKey, Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", &TransferError{
			Op:       "fetch",
			Key:      fileKey,
			NotFound: resp.StatusCode() == http.StatusNotFound,
			Err:      fmt.Errorf("HTTP %d", resp.StatusCode()),
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &TransferError{Op: "fetch", Key: fileKey, Err: err}
	}
	local := filepath.Join(dir, path.Base(fileKey))
	f, err := os.Create(local)
	if err != nil {
		return "", &TransferError{Op: "fetch", Key: fileKey, Err: err}
	}
	_, err = io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(local)
		return "", &TransferError{Op: "fetch", Key: fileKey, Err: err}
	}
	return local, nil
}
