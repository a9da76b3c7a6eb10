package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/timmy/flatsync/internal/domain"
	"github.com/timmy/flatsync/internal/repository"
)

type staticLister struct {
	keys []string
	err  error
}

func (l *staticLister) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	return l.keys, l.err
}

func newResolver(t *testing.T, lister *staticLister) *CandidateResolver {
	t.Helper()
	r, err := NewCandidateResolver(lister, "", "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	r.now = func() time.Time { return time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC) }
	return r
}

func TestResolveModes(t *testing.T) {
	p := "us_stocks_sip/day_aggs_v1"
	lister := &staticLister{keys: []string{
		p + "/2024/2024-01-03.csv.gz",
		p + "/2024/2024-01-02.csv.gz",
		p + "/2024/notes.csv.gz",
	}}
	r := newResolver(t, lister)

	tests := []struct {
		name string
		req  CandidateRequest
		want []string
	}{
		{
			name: "historical all",
			req:  CandidateRequest{Mode: ModeHistorical},
			want: []string{p + "/2024/2024-01-02.csv.gz", p + "/2024/2024-01-03.csv.gz"},
		},
		{
			name: "historical from start",
			req:  CandidateRequest{Mode: ModeHistorical, StartDate: "2024-01-03"},
			want: []string{p + "/2024/2024-01-03.csv.gz"},
		},
		{
			// 03:00 UTC on Mar 1 is still Feb 29 in New York
			name: "daily uses configured zone",
			req:  CandidateRequest{Mode: ModeDaily},
			want: []string{p + "/2024/2024-02-28.csv.gz"},
		},
		{
			name: "on-demand skips invalid dates",
			req:  CandidateRequest{Mode: ModeOnDemand, Dates: []string{"2023-12-29, 2023-13-01", "2024-01-02"}},
			want: []string{p + "/2023/2023-12-29.csv.gz", p + "/2024/2024-01-02.csv.gz"},
		},
		{
			name: "explicit keys",
			req:  CandidateRequest{Mode: ModeKeys, Keys: []string{"a/1.csv.gz,b/2.csv.gz"}},
			want: []string{"a/1.csv.gz", "b/2.csv.gz"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), &tt.req)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	r := newResolver(t, &staticLister{err: errors.New("403 forbidden")})

	for name, req := range map[string]CandidateRequest{
		"on-demand without dates": {Mode: ModeOnDemand},
		"keys without keys":       {Mode: ModeKeys},
		"bad start date":          {Mode: ModeHistorical, StartDate: "yesterday"},
		"inverted range":          {Mode: ModeHistorical, StartDate: "2024-02-01", EndDate: "2024-01-01"},
		"listing failure":         {Mode: ModeHistorical},
		"unknown mode":            {Mode: "weekly"},
	} {
		if _, err := r.Resolve(context.Background(), &req); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	if _, err := ParseDiscoverMode("ON-DEMAND"); err != nil {
		t.Errorf("ParseDiscoverMode() error = %v", err)
	}
	if _, err := NewCandidateResolver(nil, "", "Mars/Olympus"); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestDiscovererRunIsIdempotent(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()
	d := NewDiscovererService(store, nil, quietLogger())

	stats, err := d.Run(ctx, []string{"a", "b", "a", ""})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Inserted != 2 || stats.AlreadyPresent != 1 || stats.Invalid != 1 {
		t.Errorf("first run stats = %+v", stats)
	}

	stats, err = d.Run(ctx, []string{"b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Inserted != 1 || stats.AlreadyPresent != 1 {
		t.Errorf("second run stats = %+v", stats)
	}

	counts, _ := store.CountByStatus(ctx)
	if counts[domain.TaskStatusPending] != 3 {
		t.Errorf("pending = %d, want 3", counts[domain.TaskStatusPending])
	}
}

type failingEnqueuer struct{ after int }

func (f *failingEnqueuer) Enqueue(ctx context.Context, key string) (repository.EnqueueResult, error) {
	if f.after == 0 {
		return 0, &repository.StoreError{Op: "enqueue", Err: errors.New("disk I/O error")}
	}
	f.after--
	return repository.EnqueueInserted, nil
}

func TestDiscovererStopsOnStoreError(t *testing.T) {
	d := NewDiscovererService(&failingEnqueuer{after: 2}, nil, quietLogger())

	stats, err := d.Run(context.Background(), []string{"a", "b", "c", "d"})
	if !repository.IsUnavailable(err) {
		t.Fatalf("Run() error = %v, want unavailable", err)
	}
	if stats.Inserted != 2 {
		t.Errorf("partial stats = %+v", stats)
	}
}

func TestDiscoverResolvesAndEnqueues(t *testing.T) {
	store := newTestStore(t, 2)
	d := NewDiscovererService(store, newResolver(t, &staticLister{}), quietLogger())

	stats, err := d.Discover(context.Background(), &CandidateRequest{Mode: ModeOnDemand, Dates: []string{"2024-01-02"}})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Inserted != 1 || stats.RunID == "" {
		t.Errorf("stats = %+v", stats)
	}
	if _, err := store.GetByFileKey(context.Background(), testKey); err != nil {
		t.Errorf("GetByFileKey() error = %v", err)
	}
}

type memoryRuns struct {
	started  []domain.DiscoverRun
	finished []domain.DiscoverRun
}

func (m *memoryRuns) Start(ctx context.Context, run *domain.DiscoverRun) error {
	m.started = append(m.started, *run)
	return nil
}

func (m *memoryRuns) Finish(ctx context.Context, run *domain.DiscoverRun) error {
	m.finished = append(m.finished, *run)
	return nil
}

func TestDiscovererRecordsRuns(t *testing.T) {
	runs := &memoryRuns{}
	d := NewDiscovererService(&failingEnqueuer{after: 1}, nil, quietLogger()).WithRunRecorder(runs)

	stats, err := d.Run(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("Run() succeeded, want store error")
	}
	if len(runs.started) != 1 || len(runs.finished) != 1 {
		t.Fatalf("started=%d finished=%d", len(runs.started), len(runs.finished))
	}
	got := runs.finished[0]
	if got.ID != stats.RunID || got.Mode != string(ModeKeys) {
		t.Errorf("run = %+v", got)
	}
	if got.Status != domain.RunStatusFailed || got.Inserted != 1 || got.ErrorLog == "" || got.CompletedAt == nil {
		t.Errorf("finished run = %+v", got)
	}

	runs = &memoryRuns{}
	store := newTestStore(t, 2)
	d = NewDiscovererService(store, nil, quietLogger()).WithRunRecorder(runs)
	if _, err := d.Run(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if len(runs.finished) != 1 || runs.finished[0].Status != domain.RunStatusCompleted {
		t.Errorf("finished = %+v", runs.finished)
	}
}
