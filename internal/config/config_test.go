package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Worker.MaxRetries != 2 {
		t.Errorf("max_retries = %d, want 2", cfg.Worker.MaxRetries)
	}
	if cfg.Worker.PollInterval != 10*time.Second {
		t.Errorf("poll_interval = %s, want 10s", cfg.Worker.PollInterval)
	}
	if cfg.Source.Bucket != "flatfiles" {
		t.Errorf("source bucket = %q, want flatfiles", cfg.Source.Bucket)
	}
	if !strings.HasPrefix(cfg.Worker.ID, "worker-") {
		t.Errorf("worker id = %q, want worker- prefix", cfg.Worker.ID)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "flatsync.yaml")
	content := `
worker:
  id: file-worker
  poll_interval: 3s
  max_retries: 4
destination:
  bucket: from-file
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WORKER_ID", "env-worker")
	t.Setenv("B2_BUCKET_NAME", "from-env")
	t.Setenv("DATABASE_URL", "sqlite:///data/test_tracker.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Worker.ID != "env-worker" {
		t.Errorf("worker id = %q, want env-worker", cfg.Worker.ID)
	}
	if cfg.Destination.Bucket != "from-env" {
		t.Errorf("bucket = %q, want from-env", cfg.Destination.Bucket)
	}
	if cfg.Worker.PollInterval != 3*time.Second || cfg.Worker.MaxRetries != 4 {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "data/test_tracker.db" {
		t.Errorf("database = %q %q", cfg.Database.Driver, cfg.Database.Path)
	}
}

func TestDatabaseURL(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantPath   string
		wantErr    bool
	}{
		{url: "postgres://u:p@db:5432/tasks", wantDriver: "postgres"},
		{url: "postgresql://u:p@db/tasks", wantDriver: "postgres"},
		{url: "sqlite:///data/tracker.db", wantDriver: "sqlite", wantPath: "data/tracker.db"},
		{url: "sqlite:////var/lib/tracker.db", wantDriver: "sqlite", wantPath: "/var/lib/tracker.db"},
		{url: "mysql://nope", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			c := DatabaseConfig{URL: tc.url, Driver: "sqlite"}
			err := c.applyURL()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("applyURL() error = %v", err)
			}
			if c.Driver != tc.wantDriver {
				t.Errorf("driver = %q, want %q", c.Driver, tc.wantDriver)
			}
			if tc.wantPath != "" && c.Path != tc.wantPath {
				t.Errorf("path = %q, want %q", c.Path, tc.wantPath)
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	c := DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"}
	dsn := c.DSN()
	for _, want := range []string{"/tmp/x.db?", "_txlock=immediate", "_journal_mode=WAL", "_busy_timeout=5000"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN %q missing %q", dsn, want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Source: SourceConfig{Type: "s3", Endpoint: "https://files.polygon.io", Bucket: "flatfiles"}}
	if err := cfg.ValidateSource(); err == nil || !strings.Contains(err.Error(), "POLYGON_API_KEY") {
		t.Errorf("ValidateSource() = %v, want missing POLYGON_API_KEY", err)
	}
	cfg.Source.AccessKey = "key"
	if err := cfg.ValidateSource(); err != nil {
		t.Errorf("ValidateSource() = %v", err)
	}

	if err := cfg.ValidateDestination(); err == nil {
		t.Error("ValidateDestination() should fail with empty destination")
	}
	cfg.Destination = DestinationConfig{AccessKey: "a", SecretKey: "b", Bucket: "c", Endpoint: "d"}
	if err := cfg.ValidateDestination(); err != nil {
		t.Errorf("ValidateDestination() = %v", err)
	}
}

func TestInferRegion(t *testing.T) {
	tests := map[string]string{
		"https://s3.us-west-000.backblazeb2.com":   "us-west-000",
		"s3.eu-central-003.backblazeb2.com":        "eu-central-003",
		"https://account.r2.cloudflarestorage.com": "",
		"localhost:9000":                           "",
	}
	for endpoint, want := range tests {
		if got := InferRegion(endpoint); got != want {
			t.Errorf("InferRegion(%q) = %q, want %q", endpoint, got, want)
		}
	}
}
