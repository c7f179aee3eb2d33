package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"meeting-notes-go/internal/config"
	"meeting-notes-go/internal/scheduler"
	"meeting-notes-go/internal/storage"
	"meeting-notes-go/internal/types"
)

type fakeScheduler struct {
	mu        sync.Mutex
	submitted []string
	cancelled []string
	running   map[string]bool
	err       error
}

func (f *fakeScheduler) Submit(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.running[id] {
		return scheduler.ErrAlreadyRunning
	}
	f.submitted = append(f.submitted, id)
	return nil
}

func (f *fakeScheduler) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[id] {
		return scheduler.ErrNotRunning
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeScheduler) IsRunning(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[id]
}

func (f *fakeScheduler) setRunning(id string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[id] = running
}

func (f *fakeScheduler) calls() (submitted, cancelled []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...), append([]string(nil), f.cancelled...)
}

func (f *fakeScheduler) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeAssistant struct {
	mu         sync.Mutex
	translated string
	err        error
	lastTarget string
}

func (f *fakeAssistant) Translate(_ context.Context, text, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTarget = target
	return f.translated, f.err
}

func (f *fakeAssistant) set(translated string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.translated, f.err = translated, err
}

func (f *fakeAssistant) target() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTarget
}

func (f *fakeAssistant) Reply(_ context.Context, message string) (string, bool, error) {
	return "echo: " + message, true, nil
}

type testServer struct {
	jobs   *storage.SQLiteStore
	files  *storage.LocalFileStore
	sched  *fakeScheduler
	assist *fakeAssistant
	http   *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	jobs, err := storage.OpenSQLite(context.Background(), filepath.Join(dir, "api.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { jobs.Close() })
	files, err := storage.NewLocalFileStore(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	sched := &fakeScheduler{running: map[string]bool{}}
	assist := &fakeAssistant{}
	srv := New(jobs, files, sched, assist, config.Default().HTTP, nil)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testServer{jobs: jobs, files: files, sched: sched, assist: assist, http: ts}
}

func (ts *testServer) do(t *testing.T, method, path, user string, body *bytes.Buffer, contentType string) *http.Response {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, ts.http.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) upload(t *testing.T, user, filename, title string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", filename)
	fw.Write([]byte("fake audio bytes"))
	if title != "" {
		mw.WriteField("title", title)
	}
	mw.Close()

	resp := ts.do(t, http.MethodPost, "/api/upload", user, &buf, mw.FormDataContentType())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var out map[string]string
	decode(t, resp, &out)
	if out["recording_id"] == "" {
		t.Fatal("no recording_id")
	}
	return out["recording_id"]
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	if resp := ts.do(t, http.MethodGet, "/healthz", "", nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

// TestRequiresUser rejects api calls without a user header.
func TestRequiresUser(t *testing.T) {
	ts := newTestServer(t)
	if resp := ts.do(t, http.MethodGet, "/api/meetings", "", nil, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

// TestUploadCreatesJob verifies the stored record and file.
func TestUploadCreatesJob(t *testing.T) {
	ts := newTestServer(t)
	id := ts.upload(t, "u1", "weekly sync.mp3", "")

	job, err := ts.jobs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.UserID != "u1" || job.Title != "weekly sync" || job.Status != types.JobStatusUploaded || job.Language != "en" {
		t.Fatalf("job = %+v", job)
	}
	if !ts.files.Exists(job.Filename) {
		t.Fatalf("file %s not stored", job.Filename)
	}
}

func TestUploadMissingFile(t *testing.T) {
	ts := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", "x")
	mw.Close()
	resp := ts.do(t, http.MethodPost, "/api/upload", "u1", &buf, mw.FormDataContentType())
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

// TestProcessTransitions covers accepted, conflicting and re-triggered runs.
func TestProcessTransitions(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	id := ts.upload(t, "u1", "a.wav", "Standup")

	if resp := ts.do(t, http.MethodPost, "/api/process/"+id, "u1", nil, ""); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first process = %d", resp.StatusCode)
	}
	if submitted, _ := ts.sched.calls(); len(submitted) != 1 || submitted[0] != id {
		t.Fatalf("submitted = %v", submitted)
	}

	ts.sched.setRunning(id, true)
	if resp := ts.do(t, http.MethodPost, "/api/process/"+id, "u1", nil, ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("running process = %d", resp.StatusCode)
	}
	ts.sched.setRunning(id, false)

	processing := types.JobStatusProcessing
	_ = ts.jobs.Update(ctx, id, storage.Fields{Status: &processing})
	if resp := ts.do(t, http.MethodPost, "/api/process/"+id, "u1", nil, ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("processing process = %d", resp.StatusCode)
	}

	failed := types.JobStatusFailed
	_ = ts.jobs.Update(ctx, id, storage.Fields{Status: &failed})
	if resp := ts.do(t, http.MethodPost, "/api/process/"+id, "u1", nil, ""); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("retrigger process = %d", resp.StatusCode)
	}

	ts.sched.setErr(scheduler.ErrShuttingDown)
	if resp := ts.do(t, http.MethodPost, "/api/process/"+id, "u1", nil, ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("shutdown process = %d", resp.StatusCode)
	}
}

// TestJobsScopedByUser hides other users' meetings.
func TestJobsScopedByUser(t *testing.T) {
	ts := newTestServer(t)
	id := ts.upload(t, "u1", "a.wav", "Mine")

	for _, path := range []string{"/api/meetings/" + id, "/api/processing-status/" + id} {
		if resp := ts.do(t, http.MethodGet, path, "u2", nil, ""); resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s as other user = %d", path, resp.StatusCode)
		}
	}
	if resp := ts.do(t, http.MethodPost, "/api/process/"+id, "u2", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("process as other user = %d", resp.StatusCode)
	}

	var list struct {
		Meetings []meetingSummary `json:"meetings"`
		Count    int              `json:"count"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/meetings", "u2", nil, ""), &list)
	if list.Count != 0 {
		t.Fatalf("u2 sees %d meetings", list.Count)
	}
	decode(t, ts.do(t, http.MethodGet, "/api/meetings?limit=10", "u1", nil, ""), &list)
	if list.Count != 1 || list.Meetings[0].Title != "Mine" {
		t.Fatalf("u1 list = %+v", list)
	}
}

func TestListBadLimit(t *testing.T) {
	ts := newTestServer(t)
	if resp := ts.do(t, http.MethodGet, "/api/meetings?limit=zero", "u1", nil, ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

// TestProcessingStatus reports the running step and its progress.
func TestProcessingStatus(t *testing.T) {
	ts := newTestServer(t)
	id := ts.upload(t, "u1", "a.wav", "")

	steps := types.NewSteps()
	_ = steps.Start(types.StepTranscription, time.Now())
	_ = steps.Succeed(types.StepTranscription, time.Now())
	_ = steps.Start(types.StepTranslation, time.Now())
	status, pct := types.JobStatusProcessing, 35
	_ = ts.jobs.Update(context.Background(), id, storage.Fields{Status: &status, Steps: &steps, Progress: &pct})

	var out struct {
		ID       string `json:"recording_id"`
		Status   string `json:"status"`
		Progress int    `json:"current_step_progress"`
		Current  string `json:"current_step"`
		Steps    []struct {
			Step   string `json:"step"`
			Status string `json:"status"`
		} `json:"processing_steps"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/processing-status/"+id, "u1", nil, ""), &out)
	if out.ID != id || out.Status != "processing" || out.Progress != 35 || out.Current != "translation" {
		t.Fatalf("status = %+v", out)
	}
	if len(out.Steps) != 4 || out.Steps[0].Status != "success" || out.Steps[1].Status != "in_progress" {
		t.Fatalf("steps = %+v", out.Steps)
	}
}

// TestDeleteRemovesRecordAndFile verifies delete cancels, removes and 404s afterwards.
func TestDeleteRemovesRecordAndFile(t *testing.T) {
	ts := newTestServer(t)
	id := ts.upload(t, "u1", "a.wav", "")
	job, _ := ts.jobs.Get(context.Background(), id)
	ts.sched.setRunning(id, true)

	if resp := ts.do(t, http.MethodDelete, "/api/meetings/"+id, "u2", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete as other user = %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodDelete, "/api/meetings/"+id, "u1", nil, ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	if _, cancelled := ts.sched.calls(); len(cancelled) != 1 {
		t.Fatalf("cancelled = %v", cancelled)
	}
	if ts.files.Exists(job.Filename) {
		t.Fatal("file still present")
	}
	if resp := ts.do(t, http.MethodGet, "/api/meetings/"+id, "u1", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d", resp.StatusCode)
	}
}

// TestExport checks format validation, readiness and the xlsx response.
func TestExport(t *testing.T) {
	ts := newTestServer(t)
	id := ts.upload(t, "u1", "a.wav", "")

	if resp := ts.do(t, http.MethodGet, "/api/export/"+id+"/pdf", "u1", nil, ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("pdf export = %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodGet, "/api/export/"+id+"/xlsx", "u1", nil, ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("unprocessed export = %d", resp.StatusCode)
	}

	completed := types.JobStatusCompleted
	notes := &types.Notes{Summary: "done", KeyPoints: []string{"a"}, ActionItems: []string{}, Decisions: []string{}}
	_ = ts.jobs.Update(context.Background(), id, storage.Fields{Status: &completed, Notes: notes})

	resp := ts.do(t, http.MethodGet, "/api/export/"+id+"/xlsx", "u1", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, id+".xlsx") {
		t.Fatalf("content disposition = %q", cd)
	}
}

// TestBuildStats counts totals and buckets uploads into the last seven days.
func TestBuildStats(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	jobs := []*types.Job{
		{Status: types.JobStatusCompleted, UploadDate: now.Add(-time.Hour), Notes: &types.Notes{Summary: "one two three"}},
		{Status: types.JobStatusCompleted, UploadDate: now.AddDate(0, 0, -6), Notes: &types.Notes{Summary: "four five"}},
		{Status: types.JobStatusFailed, UploadDate: now.AddDate(0, 0, -1)},
		{Status: types.JobStatusUploaded, UploadDate: now.AddDate(0, 0, -30)},
	}
	s := buildStats(jobs, now)
	if s.TotalMeetings != 4 || s.CompletedMeetings != 2 || s.TotalWords != 5 {
		t.Fatalf("stats = %+v", s)
	}
	wantLabels := []string{"Tue", "Wed", "Thu", "Fri", "Sat", "Sun", "Mon"}
	if !reflect.DeepEqual(s.Labels, wantLabels) {
		t.Fatalf("labels = %v", s.Labels)
	}
	if want := []int{1, 0, 0, 0, 0, 1, 1}; !reflect.DeepEqual(s.Uploads, want) {
		t.Fatalf("uploads = %v", s.Uploads)
	}
}
