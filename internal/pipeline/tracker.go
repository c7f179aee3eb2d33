package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"meeting-notes-go/internal/progress"
	"meeting-notes-go/internal/storage"
	"meeting-notes-go/internal/types"
)

// tracker is the only writer of one job's record for the duration of a run.
// Step transitions arrive as synchronous requests and progress ticks arrive
// on a channel; both are applied by a single goroutine, so a late tick can
// never overwrite a newer transition.
type tracker struct {
	jobID string
	store storage.JobStore
	// writes outlive a cancelled run so an in-flight transition is not torn
	ctx   context.Context
	log   *logrus.Entry
	now   func() time.Time
	steps types.Steps

	ticks chan progress.Tick
	reqs  chan request
	done  chan struct{}
}

type request struct {
	apply func() error
	reply chan error
}

func newTracker(ctx context.Context, jobID string, store storage.JobStore, log *logrus.Entry, now func() time.Time) *tracker {
	t := &tracker{
		jobID: jobID,
		store: store,
		ctx:   context.WithoutCancel(ctx),
		log:   log,
		now:   now,
		steps: types.NewSteps(),
		ticks: make(chan progress.Tick, 16),
		reqs:  make(chan request),
		done:  make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *tracker) loop() {
	defer close(t.done)
	for {
		select {
		case tick := <-t.ticks:
			t.applyTick(tick)
		case req, ok := <-t.reqs:
			if !ok {
				return
			}
			req.reply <- req.apply()
		}
	}
}

// close stops the writer. Every reporter feeding ticks must have exited.
func (t *tracker) close() {
	close(t.reqs)
	<-t.done
}

func (t *tracker) do(apply func() error) error {
	reply := make(chan error, 1)
	t.reqs <- request{apply: apply, reply: reply}
	return <-reply
}

func (t *tracker) applyTick(tick progress.Tick) {
	running, ok := t.steps.InProgress()
	if !ok || running != tick.Step {
		return
	}
	pct := tick.Percent
	if err := t.store.Update(t.ctx, t.jobID, storage.Fields{Progress: &pct}); err != nil {
		t.log.WithField("error", err.Error()).Warn("progress update failed")
		return
	}
	t.log.WithFields(logrus.Fields{"step": tick.Step.String(), "progress": pct}).Debug("step progress")
}

// begin resets the record for a fresh run.
func (t *tracker) begin() error {
	return t.do(func() error {
		t.steps = types.NewSteps()
		status := types.JobStatusProcessing
		zero, noErr := 0, ""
		steps := t.steps
		return t.store.Update(t.ctx, t.jobID, storage.Fields{Status: &status, Steps: &steps, Progress: &zero, Error: &noErr})
	})
}

func (t *tracker) start(name types.StepName) error {
	return t.transition(func(s *types.Steps) error { return s.Start(name, t.now()) }, nil)
}

func (t *tracker) succeed(name types.StepName) error {
	return t.transition(func(s *types.Steps) error { return s.Succeed(name, t.now()) }, nil)
}

// fail marks the step and the job failed with the same message.
func (t *tracker) fail(name types.StepName, msg string) error {
	failed := types.JobStatusFailed
	return t.transition(func(s *types.Steps) error { return s.Fail(name, msg, t.now()) },
		&storage.Fields{Status: &failed, Error: &msg})
}

// failJob fails the run when no step is running.
func (t *tracker) failJob(msg string) error {
	return t.do(func() error {
		failed := types.JobStatusFailed
		return t.store.Update(t.ctx, t.jobID, storage.Fields{Status: &failed, Error: &msg})
	})
}

// complete writes the results and the completed status in one update.
func (t *tracker) complete(tr *types.Transcription, notes *types.Notes) error {
	return t.do(func() error {
		if !t.steps.AllSucceeded() {
			return fmt.Errorf("cannot complete job %s: not every step succeeded", t.jobID)
		}
		status := types.JobStatusCompleted
		zero := 0
		return t.store.Update(t.ctx, t.jobID, storage.Fields{
			Status:        &status,
			Progress:      &zero,
			Transcription: tr,
			Notes:         notes,
		})
	})
}

// transition applies change to a copy of the steps, persists it with
// progress reset to zero plus any extra fields, and adopts it on success.
func (t *tracker) transition(change func(*types.Steps) error, extra *storage.Fields) error {
	return t.do(func() error {
		next := t.steps
		if err := change(&next); err != nil {
			return err
		}
		f := storage.Fields{}
		if extra != nil {
			f = *extra
		}
		zero := 0
		f.Steps = &next
		f.Progress = &zero
		if err := t.store.Update(t.ctx, t.jobID, f); err != nil {
			return fmt.Errorf("persist steps: %w", err)
		}
		t.steps = next
		return nil
	})
}
