// Package progress emits cosmetic per-step progress percentages while a
// pipeline step runs. Nothing waits on it for correctness.
package progress

import (
	"context"
	"time"

	"meeting-notes-go/internal/config"
	"meeting-notes-go/internal/types"
)

// DefaultSchedule is the sequence of percentages reported for every step.
var DefaultSchedule = []int{10, 20, 35, 50, 65, 75, 85, 95, 100}

// Tick is one progress report for a step.
type Tick struct {
	Step    types.StepName
	Percent int
}

type Reporter struct {
	Schedule []int
}

// Start emits the schedule for step spread evenly across d, sending each
// tick on out. It stops as soon as ctx is done. The returned channel is
// closed when the reporter has exited.
func (r Reporter) Start(ctx context.Context, step types.StepName, d time.Duration, out chan<- Tick) <-chan struct{} {
	schedule := r.Schedule
	if len(schedule) == 0 {
		schedule = DefaultSchedule
	}
	interval := d / time.Duration(len(schedule))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, pct := range schedule {
			if i > 0 {
				timer := time.NewTimer(interval)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return
				}
			}
			select {
			case out <- Tick{Step: step, Percent: pct}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// Duration returns the configured animation length for step.
func Duration(cfg config.ProgressConfig, step types.StepName) time.Duration {
	switch step {
	case types.StepTranscription:
		return cfg.Transcription
	case types.StepTranslation:
		return cfg.Translation
	case types.StepOptimization:
		return cfg.Optimization
	case types.StepAIGeneration:
		return cfg.AIGeneration
	default:
		return 0
	}
}
