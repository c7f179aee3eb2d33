package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"meeting-notes-go/internal/api"
	"meeting-notes-go/internal/completion"
	"meeting-notes-go/internal/config"
	"meeting-notes-go/internal/logger"
	"meeting-notes-go/internal/pipeline"
	"meeting-notes-go/internal/scheduler"
	"meeting-notes-go/internal/storage"
	"meeting-notes-go/internal/summarizer"
	"meeting-notes-go/internal/transcription"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load() // loads .env

	cfg, err := config.Load()
	if err != nil {
		logger.New("", "info").WithError(err).Fatal("failed to load config")
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	log.WithField("service", "meeting-notes-go").Info("starting service")
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs, err := storage.OpenSQLite(ctx, cfg.Storage.DBPath, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open job store")
	}
	defer jobs.Close()
	files, err := storage.NewLocalFileStore(cfg.Storage.UploadDir)
	if err != nil {
		log.WithError(err).Fatal("failed to open upload directory")
	}

	engine, err := summarizer.New(completion.New(cfg.Completion, log), cfg.Summarizer, cfg.Completion.Model, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build summarizer")
	}
	orchestrator := pipeline.New(pipeline.Deps{
		Jobs:        jobs,
		Files:       files,
		Transcriber: transcription.New(cfg.Transcription, log),
		Summarizer:  engine,
	}, cfg.Progress, log)

	sched := scheduler.New(orchestrator, jobs, cfg.Scheduler, log)
	if n, err := sched.ResumeOrphaned(ctx); err != nil {
		log.WithError(err).Error("startup recovery failed")
	} else if n > 0 {
		log.WithField("resubmitted", n).Info("resumed interrupted jobs")
	}
	go sched.RunSweeper(ctx)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.New(jobs, files, sched, engine, cfg.HTTP, log).Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server terminated")
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("scheduler shutdown incomplete")
	}
	log.Info("stopped")
}
