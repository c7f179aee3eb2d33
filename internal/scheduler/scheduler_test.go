package scheduler

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"meeting-notes-go/internal/config"
	"meeting-notes-go/internal/storage"
	"meeting-notes-go/internal/types"
)

// blockingRunner records runs and blocks each one until released or cancelled.
type blockingRunner struct {
	mu        sync.Mutex
	started   chan string
	release   chan struct{}
	cancelled []string
	runs      map[string]int
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan string, 16),
		release: make(chan struct{}),
		runs:    map[string]int{},
	}
}

func (r *blockingRunner) Run(ctx context.Context, jobID string) {
	r.mu.Lock()
	r.runs[jobID]++
	r.mu.Unlock()
	r.started <- jobID
	select {
	case <-r.release:
	case <-ctx.Done():
		r.mu.Lock()
		r.cancelled = append(r.cancelled, jobID)
		r.mu.Unlock()
	}
}

func (r *blockingRunner) waitStarted(t *testing.T, want string) {
	t.Helper()
	select {
	case id := <-r.started:
		if id != want {
			t.Fatalf("started %s, want %s", id, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run %s never started", want)
	}
}

type listStore struct {
	storage.JobStore
	jobs []*types.Job
	err  error
}

func (s listStore) ListByStatus(_ context.Context, status types.JobStatus) ([]*types.Job, error) {
	var out []*types.Job
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, s.err
}

// TestSubmitRejectsDuplicates verifies one run per job at a time.
func TestSubmitRejectsDuplicates(t *testing.T) {
	r := newBlockingRunner()
	s := New(r, listStore{}, config.SchedulerConfig{}, nil)

	if err := s.Submit("a"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	r.waitStarted(t, "a")
	if err := s.Submit("a"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("duplicate submit err = %v", err)
	}
	if err := s.Submit("b"); err != nil {
		t.Fatalf("submit b: %v", err)
	}
	r.waitStarted(t, "b")
	if got := s.Running(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("running = %v", got)
	}

	close(r.release)
	s.Wait()
	if len(s.Running()) != 0 || s.IsRunning("a") {
		t.Fatalf("runs not cleared: %v", s.Running())
	}
	if err := s.Submit("a"); err != nil {
		t.Fatalf("resubmit after finish: %v", err)
	}
	s.Wait()
}

// TestCancel stops one run and reports unknown jobs.
func TestCancel(t *testing.T) {
	r := newBlockingRunner()
	s := New(r, listStore{}, config.SchedulerConfig{}, nil)

	if err := s.Cancel("nope"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("cancel unknown err = %v", err)
	}
	_ = s.Submit("a")
	r.waitStarted(t, "a")
	if err := s.Cancel("a"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	s.Wait()
	if !reflect.DeepEqual(r.cancelled, []string{"a"}) {
		t.Fatalf("cancelled = %v", r.cancelled)
	}
}

// TestShutdownDrains cancels in-flight runs and refuses new work.
func TestShutdownDrains(t *testing.T) {
	r := newBlockingRunner()
	s := New(r, listStore{}, config.SchedulerConfig{}, nil)
	_ = s.Submit("a")
	r.waitStarted(t, "a")
	_ = s.Submit("b")
	r.waitStarted(t, "b")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(r.cancelled) != 2 {
		t.Fatalf("cancelled = %v", r.cancelled)
	}
	if err := s.Submit("c"); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("submit after shutdown err = %v", err)
	}
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

// TestRecoverResubmitsStaleJobs checks only stale, idle processing jobs rerun.
func TestRecoverResubmitsStaleJobs(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := listStore{jobs: []*types.Job{
		{ID: "stale", Status: types.JobStatusProcessing, UpdatedAt: now.Add(-time.Hour)},
		{ID: "fresh", Status: types.JobStatusProcessing, UpdatedAt: now.Add(-time.Minute)},
		{ID: "busy", Status: types.JobStatusProcessing, UpdatedAt: now.Add(-time.Hour)},
		{ID: "failed", Status: types.JobStatusFailed, UpdatedAt: now.Add(-time.Hour)},
	}}
	r := newBlockingRunner()
	s := New(r, store, config.SchedulerConfig{StaleAfter: 30 * time.Minute}, nil)
	s.now = func() time.Time { return now }

	_ = s.Submit("busy")
	r.waitStarted(t, "busy")

	n, err := s.Recover(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("resubmitted = %d, want 1", n)
	}
	r.waitStarted(t, "stale")
	close(r.release)
	s.Wait()

	if r.runs["busy"] != 1 || r.runs["stale"] != 1 || r.runs["fresh"] != 0 || r.runs["failed"] != 0 {
		t.Fatalf("runs = %v", r.runs)
	}
}

// TestResumeOrphanedIgnoresAge resubmits fresh processing jobs at startup.
func TestResumeOrphanedIgnoresAge(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := listStore{jobs: []*types.Job{
		{ID: "fresh", Status: types.JobStatusProcessing, UpdatedAt: now.Add(-time.Second)},
		{ID: "done", Status: types.JobStatusCompleted, UpdatedAt: now.Add(-time.Hour)},
	}}
	r := newBlockingRunner()
	s := New(r, store, config.SchedulerConfig{StaleAfter: 30 * time.Minute}, nil)
	s.now = func() time.Time { return now }

	n, err := s.ResumeOrphaned(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if n != 1 {
		t.Fatalf("resubmitted = %d, want 1", n)
	}
	r.waitStarted(t, "fresh")
	close(r.release)
	s.Wait()
	if r.runs["done"] != 0 {
		t.Fatalf("runs = %v", r.runs)
	}
}

func TestRecoverListError(t *testing.T) {
	s := New(newBlockingRunner(), listStore{err: errors.New("db down")}, config.SchedulerConfig{}, nil)
	if _, err := s.Recover(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// TestRunSweeperStops checks the sweep loop exits with its context.
func TestRunSweeperStops(t *testing.T) {
	s := New(newBlockingRunner(), listStore{}, config.SchedulerConfig{SweepInterval: time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.RunSweeper(ctx); close(done) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
