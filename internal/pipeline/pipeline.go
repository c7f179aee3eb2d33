// Package pipeline runs one meeting job through transcription, translation,
// optimization and note generation, recording each step on the job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"meeting-notes-go/internal/config"
	"meeting-notes-go/internal/logger"
	"meeting-notes-go/internal/normalizer"
	"meeting-notes-go/internal/progress"
	"meeting-notes-go/internal/storage"
	"meeting-notes-go/internal/summarizer"
	"meeting-notes-go/internal/transcription"
	"meeting-notes-go/internal/types"
)

// Summarizer produces notes for a transcript. It must always return usable notes.
type Summarizer interface {
	Summarize(ctx context.Context, in summarizer.Input) (types.Notes, summarizer.Mode)
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Jobs        storage.JobStore
	Files       storage.FileStore
	Transcriber transcription.Transcriber
	Summarizer  Summarizer
}

type Orchestrator struct {
	deps     Deps
	progress config.ProgressConfig
	reporter progress.Reporter
	log      *logrus.Entry
	now      func() time.Time
}

func New(deps Deps, cfg config.ProgressConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		deps:     deps,
		progress: cfg,
		log:      logger.OrDiscard(log).Component("pipeline"),
		now:      time.Now,
	}
}

// run holds the intermediate results of one job run.
type run struct {
	job        *types.Job
	path       string
	raw        string
	translated string
	optimized  string
	features   normalizer.Features
	notes      types.Notes
	mode       summarizer.Mode
}

// Run processes jobID to completion or failure. It never returns an error:
// failures are recorded on the job. If ctx is cancelled the job is left in
// the processing state for the recovery sweep.
func (o *Orchestrator) Run(ctx context.Context, jobID string) {
	log := o.log.WithField("job_id", jobID)
	start := o.now()

	job, err := o.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		log.WithField("error", err.Error()).Error("cannot load job, aborting run")
		return
	}

	tr := newTracker(ctx, jobID, o.deps.Jobs, log, o.now)
	defer tr.close()

	if err := tr.begin(); err != nil {
		log.WithField("error", err.Error()).Error("cannot reset job for processing")
		return
	}
	log.WithField("title", job.Title).Info("processing started")

	if !o.deps.Files.Exists(job.Filename) {
		log.WithField("filename", job.Filename).Error("source file missing")
		if err := tr.failJob("file not found"); err != nil {
			log.WithField("error", err.Error()).Error("cannot record failure")
		}
		return
	}

	r := &run{job: job, path: o.deps.Files.Path(job.Filename)}
	steps := []struct {
		name types.StepName
		fn   func(context.Context, *run) error
	}{
		{types.StepTranscription, o.transcribe},
		{types.StepTranslation, o.translate},
		{types.StepOptimization, o.optimize},
		{types.StepAIGeneration, o.generate},
	}
	for _, s := range steps {
		if err := o.runStep(ctx, tr, r, s.name, s.fn); err != nil {
			if ctx.Err() != nil {
				log.WithField("step", s.name.String()).Warn("run cancelled, leaving job for recovery")
			}
			return
		}
	}

	transcript := &types.Transcription{Raw: r.raw, Translated: r.translated, Optimized: r.optimized}
	if err := tr.complete(transcript, &r.notes); err != nil {
		log.WithField("error", err.Error()).Error("cannot store results")
		return
	}
	log.WithFields(logrus.Fields{
		"mode":       r.mode,
		"key_points": len(r.notes.KeyPoints),
		"elapsed":    o.now().Sub(start).String(),
	}).Info("processing completed")
}

// runStep moves one step through in_progress to success or failed while a
// progress reporter runs beside it.
func (o *Orchestrator) runStep(ctx context.Context, tr *tracker, r *run, name types.StepName, fn func(context.Context, *run) error) error {
	log := o.log.WithField("job_id", r.job.ID).WithField("step", name.String())

	if err := tr.start(name); err != nil {
		log.WithField("error", err.Error()).Error("cannot start step")
		return err
	}
	log.Info("step started")

	d := progress.Duration(o.progress, name)
	reportCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()
	reported := o.reporter.Start(reportCtx, name, d, tr.ticks)

	err := safeCall(ctx, log, r, fn)
	if err == nil {
		select {
		case <-reported:
		case <-time.After(d + o.progress.Grace):
			log.Warn("progress reporter overran, continuing")
		case <-ctx.Done():
		}
	}
	stopReporter()
	<-reported

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("step failed")
		if ferr := tr.fail(name, err.Error()); ferr != nil {
			log.WithField("error", ferr.Error()).Error("cannot record step failure")
		}
		return err
	}
	if err := tr.succeed(name); err != nil {
		log.WithField("error", err.Error()).Error("cannot complete step")
		return err
	}
	log.Info("step succeeded")
	return nil
}

func safeCall(ctx context.Context, log *logrus.Entry, r *run, fn func(context.Context, *run) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			log.WithField("stack", string(debug.Stack())).Error("step panicked")
		}
	}()
	return fn(ctx, r)
}

func (o *Orchestrator) transcribe(ctx context.Context, r *run) error {
	res, err := o.deps.Transcriber.Transcribe(ctx, r.path)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	if res.Status == transcription.StatusError {
		return fmt.Errorf("transcription failed: %s", res.Error)
	}
	if strings.TrimSpace(res.Text) == "" {
		return errors.New("transcription returned no text")
	}
	r.raw = res.Text
	return nil
}

// translate is an identity transform; the step still transitions so
// consumers see the full sequence.
func (o *Orchestrator) translate(_ context.Context, r *run) error {
	r.translated = r.raw
	return nil
}

func (o *Orchestrator) optimize(_ context.Context, r *run) error {
	r.optimized = normalizer.Clean(r.translated)
	r.features = normalizer.Extract(r.optimized)
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, r *run) error {
	r.notes, r.mode = o.deps.Summarizer.Summarize(ctx, summarizer.Input{
		Title:      r.job.Title,
		Text:       r.optimized,
		Raw:        r.raw,
		Translated: r.translated,
		Features:   r.features,
	})
	return ctx.Err()
}
