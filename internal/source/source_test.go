package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timmy/flatsync/internal/storage"
)

func TestTransferErrorKinds(t *testing.T) {
	missing := &TransferError{Op: "fetch", Key: "k", NotFound: true, Err: storage.ErrObjectNotFound}
	if !errors.Is(missing, ErrNotFound) || !errors.Is(missing, ErrTransfer) {
		t.Error("not-found transfer error should match ErrNotFound and ErrTransfer")
	}
	if !errors.Is(missing, storage.ErrObjectNotFound) {
		t.Error("transfer error should unwrap to its cause")
	}

	failed := fmt.Errorf("wrapped: %w", &TransferError{Op: "fetch", Key: "k", Err: io.ErrUnexpectedEOF})
	if errors.Is(failed, ErrNotFound) {
		t.Error("generic transfer error should not match ErrNotFound")
	}
	var te *TransferError
	if !errors.As(failed, &te) || te.Key != "k" {
		t.Errorf("errors.As() = %+v", te)
	}
}

// fakeStore serves objects from memory.
type fakeStore struct {
	storage.ObjectStorage
	objects map[string]string
}

func (f *fakeStore) Bucket() string { return "flatfiles" }

func (f *fakeStore) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (f *fakeStore) DownloadToFile(ctx context.Context, key, path string) (int64, error) {
	v, ok := f.objects[key]
	if !ok {
		return 0, storage.ErrObjectNotFound
	}
	if err := os.WriteFile(path, []byte(v), 0o644); err != nil {
		return 0, err
	}
	return int64(len(v)), nil
}

func TestS3SourceFetch(t *testing.T) {
	key := "us_stocks_sip/day_aggs_v1/2024/2024-01-02.csv.gz"
	src := NewS3Source(&fakeStore{objects: map[string]string{key: "ticker,volume"}})
	dir := t.TempDir()

	local, err := src.Fetch(context.Background(), key, dir)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if local != filepath.Join(dir, "2024-01-02.csv.gz") {
		t.Errorf("local path = %q", local)
	}

	_, err = src.Fetch(context.Background(), "us_stocks_sip/day_aggs_v1/2024/2024-01-06.csv.gz", dir)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(missing) error = %v, want ErrNotFound", err)
	}

	keys, err := src.ListKeys(context.Background(), "us_stocks_sip/day_aggs_v1")
	if err != nil || len(keys) != 1 || keys[0] != key {
		t.Errorf("ListKeys() = %v, %v", keys, err)
	}
}

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/files/us_stocks_sip/day_aggs_v1/2024/2024-01-02.csv.gz":
			fmt.Fprint(w, "payload")
		case "/files/broken.csv.gz":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(&HTTPConfig{BaseURL: srv.URL + "/files/", APIKey: "secret"})
	dir := t.TempDir()

	local, err := src.Fetch(context.Background(), "us_stocks_sip/day_aggs_v1/2024/2024-01-02.csv.gz", dir)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	data, _ := os.ReadFile(local)
	if string(data) != "payload" {
		t.Errorf("downloaded %q", data)
	}

	_, err = src.Fetch(context.Background(), "missing.csv.gz", dir)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(missing) error = %v, want ErrNotFound", err)
	}

	_, err = src.Fetch(context.Background(), "broken.csv.gz", dir)
	if !errors.Is(err, ErrTransfer) || errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(502) error = %v, want a plain transfer error", err)
	}

	if _, err := src.ListKeys(context.Background(), ""); !errors.Is(err, ErrListUnsupported) {
		t.Errorf("ListKeys() error = %v", err)
	}
}
