package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"meeting-notes-go/internal/export"
	"meeting-notes-go/internal/normalizer"
	"meeting-notes-go/internal/scheduler"
	"meeting-notes-go/internal/storage"
	"meeting-notes-go/internal/types"
)

const (
	userHeader       = "X-User-ID"
	multipartMemory  = 32 << 20
	defaultListLimit = 50
	statsDays        = 7
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type userKey struct{}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(userHeader))
		if user == "" {
			writeError(w, http.StatusUnauthorized, "missing "+userHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

// loadJob fetches the job named in the path and checks it belongs to the
// caller. It writes the error response itself and returns nil on failure.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request, log *logrus.Entry) *types.Job {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && job.UserID != userFrom(r.Context())) {
		writeError(w, http.StatusNotFound, "meeting not found")
		return nil
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("load job failed")
		writeError(w, http.StatusInternalServerError, "failed to load meeting")
		return nil
	}
	return job
}

// POST /api/upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "upload")

	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	if header.Size == 0 {
		writeError(w, http.StatusBadRequest, "empty file")
		return
	}

	key, err := s.files.Save(header.Filename, file)
	if err != nil {
		log.WithField("error", err.Error()).Error("save upload failed")
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}
	job := &types.Job{
		ID:       uuid.NewString(),
		UserID:   userFrom(r.Context()),
		Title:    title,
		Filename: key,
		Language: strings.TrimSpace(r.FormValue("language")),
		Status:   types.JobStatusUploaded,
		Steps:    types.NewSteps(),
	}
	if err := s.jobs.Create(r.Context(), job); err != nil {
		log.WithField("error", err.Error()).Error("create job failed")
		_ = s.files.Remove(key)
		writeError(w, http.StatusInternalServerError, "failed to create meeting")
		return
	}

	log.WithFields(logrus.Fields{"job_id": job.ID, "bytes": header.Size}).Info("recording uploaded")
	writeJSON(w, http.StatusCreated, map[string]string{"recording_id": job.ID})
}

// POST /api/process/{id}
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "process")
	job := s.loadJob(w, r, log)
	if job == nil {
		return
	}
	if job.Status != types.JobStatusUploaded && job.Status != types.JobStatusFailed {
		writeError(w, http.StatusConflict, "meeting is "+string(job.Status))
		return
	}

	switch err := s.sched.Submit(job.ID); {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "meeting is already processing")
		return
	case errors.Is(err, scheduler.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	case err != nil:
		log.WithField("error", err.Error()).Error("submit failed")
		writeError(w, http.StatusInternalServerError, "failed to start processing")
		return
	}

	log.WithField("job_id", job.ID).Info("processing requested")
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":      "processing started",
		"recording_id": job.ID,
	})
}

type statusResponse struct {
	RecordingID         string          `json:"recording_id"`
	Status              types.JobStatus `json:"status"`
	ProcessingSteps     types.Steps     `json:"processing_steps"`
	CurrentStepProgress int             `json:"current_step_progress"`
	CurrentStep         string          `json:"current_step,omitempty"`
	Error               string          `json:"error,omitempty"`
}

// GET /api/processing-status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job := s.loadJob(w, r, s.log.WithRequest(r).WithField("handler", "status"))
	if job == nil {
		return
	}
	resp := statusResponse{
		RecordingID:     job.ID,
		Status:          job.Status,
		ProcessingSteps: job.Steps,
		Error:           job.Error,
	}
	if step, ok := job.Steps.InProgress(); ok {
		resp.CurrentStep = step.String()
		resp.CurrentStepProgress = job.CurrentStepProgress
	}
	writeJSON(w, http.StatusOK, resp)
}

type meetingSummary struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Language         string          `json:"language"`
	UploadDate       time.Time       `json:"upload_date"`
	Status           types.JobStatus `json:"status"`
	HasTranscription bool            `json:"has_transcription"`
	HasNotes         bool            `json:"has_notes"`
	Summary          string          `json:"summary,omitempty"`
}

// GET /api/meetings?limit=
func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "list")
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	jobs, err := s.jobs.List(r.Context(), userFrom(r.Context()), limit)
	if err != nil {
		log.WithField("error", err.Error()).Error("list jobs failed")
		writeError(w, http.StatusInternalServerError, "failed to list meetings")
		return
	}
	out := make([]meetingSummary, 0, len(jobs))
	for _, j := range jobs {
		m := meetingSummary{
			ID:               j.ID,
			Title:            j.Title,
			Language:         j.Language,
			UploadDate:       j.UploadDate,
			Status:           j.Status,
			HasTranscription: j.HasTranscription,
			HasNotes:         j.HasNotes,
		}
		if j.Notes != nil {
			m.Summary = j.Notes.Summary
		}
		out = append(out, m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"meetings": out, "count": len(out)})
}

// GET /api/meetings/{id}
func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	job := s.loadJob(w, r, s.log.WithRequest(r).WithField("handler", "get"))
	if job == nil {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// DELETE /api/meetings/{id}
func (s *Server) handleDeleteMeeting(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "delete")
	job := s.loadJob(w, r, log)
	if job == nil {
		return
	}
	log = log.WithField("job_id", job.ID)

	if err := s.sched.Cancel(job.ID); err == nil {
		log.Info("cancelled running job before delete")
	}
	if err := s.jobs.Delete(r.Context(), job.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.WithField("error", err.Error()).Error("delete job failed")
		writeError(w, http.StatusInternalServerError, "failed to delete meeting")
		return
	}
	if err := s.files.Remove(job.Filename); err != nil {
		log.WithField("error", err.Error()).Warn("remove file failed")
	}
	log.Info("meeting deleted")
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/export/{id}/{format}
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "export")
	format := strings.ToLower(chi.URLParam(r, "format"))
	if format != "xlsx" {
		writeError(w, http.StatusBadRequest, "unsupported export format: "+format)
		return
	}
	job := s.loadJob(w, r, log)
	if job == nil {
		return
	}

	data, err := export.NotesWorkbook(job)
	if errors.Is(err, export.ErrNotReady) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("export failed")
		writeError(w, http.StatusInternalServerError, "failed to export meeting")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="meeting-notes-`+job.ID+`.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// statsResponse keeps the key names the dashboard reads: Labels are the
// weekday abbreviations of the last seven days, oldest first, and Uploads
// holds the matching counts.
type statsResponse struct {
	TotalMeetings     int      `json:"total_meetings"`
	CompletedMeetings int      `json:"completed_meetings"`
	TotalWords        int      `json:"total_words"`
	Labels            []string `json:"labels"`
	Uploads           []int    `json:"uploads"`
}

// GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "stats")
	jobs, err := s.jobs.List(r.Context(), userFrom(r.Context()), 0)
	if err != nil {
		log.WithField("error", err.Error()).Error("list jobs failed")
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, buildStats(jobs, s.now()))
}

func buildStats(jobs []*types.Job, now time.Time) statsResponse {
	today := now.UTC().Truncate(24 * time.Hour)
	resp := statsResponse{
		TotalMeetings: len(jobs),
		Labels:        make([]string, statsDays),
		Uploads:       make([]int, statsDays),
	}
	index := make(map[string]int, statsDays)
	for i := 0; i < statsDays; i++ {
		day := today.AddDate(0, 0, i-statsDays+1)
		resp.Labels[i] = day.Format("Mon")
		index[day.Format(time.DateOnly)] = i
	}

	for _, j := range jobs {
		if j.Status == types.JobStatusCompleted {
			resp.CompletedMeetings++
		}
		if j.Notes != nil {
			resp.TotalWords += normalizer.WordCount(j.Notes.Summary)
		}
		if i, ok := index[j.UploadDate.UTC().Format(time.DateOnly)]; ok {
			resp.Uploads[i]++
		}
	}
	return resp
}
