package destination

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/timmy/flatsync/internal/source"
	"github.com/timmy/flatsync/internal/storage"
)

type fakeBucket struct {
	storage.ObjectStorage
	objects   map[string]int64
	uploads   []string
	uploadErr error
	bucketErr error
}

func (f *fakeBucket) Bucket() string { return "market-data" }

func (f *fakeBucket) EnsureBucket(ctx context.Context) error { return f.bucketErr }

func (f *fakeBucket) Stat(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	size, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeBucket) UploadFile(ctx context.Context, key, path string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	f.uploads = append(f.uploads, key)
	f.objects[key] = info.Size()
	return nil
}

func writeLocal(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "2024-01-02.csv.gz")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPushUploadsUnderPrefix(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]int64{}}
	p := NewS3Pusher(bucket, &S3PusherConfig{KeyPrefix: "/polygon/"})

	key := "us_stocks_sip/day_aggs_v1/2024/2024-01-02.csv.gz"
	if err := p.Push(context.Background(), writeLocal(t, "abc"), key); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	want := "polygon/" + key
	if len(bucket.uploads) != 1 || bucket.uploads[0] != want {
		t.Errorf("uploads = %v, want [%s]", bucket.uploads, want)
	}
}

func TestPushSkipExisting(t *testing.T) {
	key := "k/2024-01-02.csv.gz"
	local := writeLocal(t, "abc")

	tests := []struct {
		name       string
		remoteSize int64
		present    bool
		wantUpload bool
	}{
		{"missing remote", 0, false, true},
		{"same size", 3, true, false},
		{"different size", 99, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket := &fakeBucket{objects: map[string]int64{}}
			if tt.present {
				bucket.objects[key] = tt.remoteSize
			}
			p := NewS3Pusher(bucket, &S3PusherConfig{SkipExisting: true})
			if err := p.Push(context.Background(), local, key); err != nil {
				t.Fatalf("Push() error = %v", err)
			}
			if uploaded := len(bucket.uploads) == 1; uploaded != tt.wantUpload {
				t.Errorf("uploaded = %v, want %v", uploaded, tt.wantUpload)
			}
		})
	}
}

func TestPushFailureIsTransferError(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]int64{}, uploadErr: errors.New("503 slow down")}
	p := NewS3Pusher(bucket, nil)

	err := p.Push(context.Background(), writeLocal(t, "abc"), "k")
	if !errors.Is(err, source.ErrTransfer) {
		t.Fatalf("Push() error = %v, want transfer error", err)
	}
	var te *source.TransferError
	if !errors.As(err, &te) || te.Op != "push" {
		t.Errorf("error = %#v", err)
	}
}

func TestCheckBucket(t *testing.T) {
	ok := NewS3Pusher(&fakeBucket{objects: map[string]int64{}}, nil)
	if err := ok.CheckBucket(context.Background()); err != nil {
		t.Errorf("CheckBucket() error = %v", err)
	}

	denied := errors.New("403 Forbidden")
	bad := NewS3Pusher(&fakeBucket{objects: map[string]int64{}, bucketErr: denied}, nil)
	if err := bad.CheckBucket(context.Background()); !errors.Is(err, denied) {
		t.Errorf("CheckBucket() error = %v, want wrapped %v", err, denied)
	}
}
