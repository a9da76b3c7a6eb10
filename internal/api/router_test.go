package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/timmy/flatsync/internal/api/handler"
	"github.com/timmy/flatsync/internal/config"
	"github.com/timmy/flatsync/internal/domain"
	"github.com/timmy/flatsync/internal/logger"
	"github.com/timmy/flatsync/internal/repository"
	"github.com/timmy/flatsync/internal/service"
)

const testKey = "us_stocks_sip/day_aggs_v1/2024/2024-01-02.csv.gz"

type testServer struct {
	handler http.Handler
	tasks   *repository.TaskRepository
}

func newTestServer(t *testing.T, ping func(context.Context) error) *testServer {
	t.Helper()

	log := logger.New(&logger.Config{Level: "error", Output: io.Discard})
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "tasks.db"),
		AutoMigrate: true,
	}, log)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	tasks := repository.NewTaskRepository(db, nil)
	runs := repository.NewRunRepository(db)
	resolver, err := service.NewCandidateResolver(nil, "", "UTC")
	if err != nil {
		t.Fatal(err)
	}
	if ping == nil {
		ping = func(ctx context.Context) error { return repository.Ping(ctx, db) }
	}

	return &testServer{
		handler: SetupRouter(&RouterConfig{
			Tasks:       tasks,
			Discoverer:  service.NewDiscovererService(tasks, resolver, log).WithRunRecorder(runs),
			Runs:        runs,
			Ping:        ping,
			Logger:      log,
			Mode:        "test",
			CORSOrigins: []string{"https://ops.example.com"},
		}),
		tasks: tasks,
	}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	down := newTestServer(t, func(context.Context) error { return errors.New("connection refused") })
	if rec := down.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health with store down = %d, want 503", rec.Code)
	}
}

func TestDiscoverThenQuery(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/api/v1/discover", map[string]interface{}{
		"mode":  "on-demand",
		"dates": []string{"2024-01-02", "2024-01-03"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/v1/discover = %d %s", rec.Code, rec.Body.String())
	}
	var stats service.DiscoverStats
	decode(t, rec, &stats)
	if stats.Inserted != 2 {
		t.Errorf("stats = %+v", stats)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/tasks/stats", nil)
	var counts struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"by_status"`
	}
	decode(t, rec, &counts)
	if counts.Total != 2 || counts.ByStatus["pending"] != 2 {
		t.Errorf("stats = %+v", counts)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/tasks?status=pending&limit=1", nil)
	var list handler.TaskListResponse
	decode(t, rec, &list)
	if rec.Code != http.StatusOK || len(list.Tasks) != 1 || list.Tasks[0].FileKey != testKey {
		t.Errorf("GET /api/v1/tasks = %d %+v", rec.Code, list)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/tasks/lookup?file_key="+testKey, nil)
	var task domain.Task
	decode(t, rec, &task)
	if rec.Code != http.StatusOK || task.Status != domain.TaskStatusPending {
		t.Errorf("lookup = %d %+v", rec.Code, task)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/tasks/"+jsonNumber(task.ID), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/v1/tasks/:id = %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/discover/status", nil)
	var status handler.DiscoverStatusResponse
	decode(t, rec, &status)
	if status.IsRunning || status.LastRunStatus != "completed" {
		t.Errorf("discover status = %+v", status)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/discover/runs", nil)
	var history struct {
		Runs []domain.DiscoverRun `json:"runs"`
	}
	decode(t, rec, &history)
	if len(history.Runs) != 1 || history.Runs[0].ID != stats.RunID || history.Runs[0].Inserted != 2 {
		t.Fatalf("runs = %+v", history.Runs)
	}
	if history.Runs[0].Status != domain.RunStatusCompleted || history.Runs[0].Mode != "on-demand" {
		t.Errorf("run = %+v", history.Runs[0])
	}

	if rec := srv.do(t, http.MethodGet, "/api/v1/discover/runs/"+stats.RunID, nil); rec.Code != http.StatusOK {
		t.Errorf("GET run = %d", rec.Code)
	}
}

func jsonNumber(id uint) string {
	data, _ := json.Marshal(id)
	return string(data)
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   interface{}
		want   int
	}{
		{"unknown status", http.MethodGet, "/api/v1/tasks?status=lost", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/v1/tasks?limit=-1", nil, http.StatusBadRequest},
		{"lookup without key", http.MethodGet, "/api/v1/tasks/lookup", nil, http.StatusBadRequest},
		{"lookup missing", http.MethodGet, "/api/v1/tasks/lookup?file_key=nope", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/v1/tasks/abc", nil, http.StatusBadRequest},
		{"run missing", http.MethodGet, "/api/v1/discover/runs/nope", nil, http.StatusNotFound},
		{"bad run limit", http.MethodGet, "/api/v1/discover/runs?limit=0", nil, http.StatusBadRequest},
		{"discover without mode", http.MethodPost, "/api/v1/discover", map[string]string{}, http.StatusBadRequest},
		{"discover bad mode", http.MethodPost, "/api/v1/discover", map[string]string{"mode": "weekly"}, http.StatusBadRequest},
		{"release without duration", http.MethodPost, "/api/v1/tasks/release-stale", map[string]string{"older_than": "soon"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := srv.do(t, tt.method, tt.target, tt.body); rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.target, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestReleaseStaleEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := srv.do(t, http.MethodPost, "/api/v1/tasks/release-stale", map[string]string{"older_than": "1h"})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST release-stale = %d %s", rec.Code, rec.Body.String())
	}
	var body map[string]int
	decode(t, rec, &body)
	if body["released"] != 0 {
		t.Errorf("released = %d", body["released"])
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks/stats", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got allow header %q", got)
	}
}
