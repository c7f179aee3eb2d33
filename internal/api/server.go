// Package api exposes the meeting endpoints over HTTP, along with the
// translation and assistant chat helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"meeting-notes-go/internal/config"
	"meeting-notes-go/internal/logger"
	"meeting-notes-go/internal/storage"
)

// Scheduler starts and stops background processing runs.
type Scheduler interface {
	Submit(jobID string) error
	Cancel(jobID string) error
	IsRunning(jobID string) bool
}

// Assistant answers ad-hoc translation and chat requests.
type Assistant interface {
	Translate(ctx context.Context, text, target string) (string, error)
	Reply(ctx context.Context, message string) (reply string, ai bool, err error)
}

type Server struct {
	jobs   storage.JobStore
	files  storage.FileStore
	sched  Scheduler
	assist Assistant
	cfg    config.HTTPConfig
	log    *logger.Logger
	now    func() time.Time
}

func New(jobs storage.JobStore, files storage.FileStore, sched Scheduler, assist Assistant, cfg config.HTTPConfig, log *logger.Logger) *Server {
	return &Server{
		jobs:   jobs,
		files:  files,
		sched:  sched,
		assist: assist,
		cfg:    cfg,
		log:    logger.OrDiscard(log),
		now:    time.Now,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/upload", s.handleUpload)
			r.Post("/process/{id}", s.handleProcess)
			r.Get("/processing-status/{id}", s.handleStatus)
			r.Get("/meetings", s.handleListMeetings)
			r.Get("/meetings/{id}", s.handleGetMeeting)
			r.Delete("/meetings/{id}", s.handleDeleteMeeting)
			r.Get("/export/{id}/{format}", s.handleExport)
			r.Get("/stats", s.handleStats)
			r.Post("/translate", s.handleTranslate)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithRequest(r).WithFields(logrus.Fields{
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
