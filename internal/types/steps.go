package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepName identifies one fixed pipeline phase. The numeric order is the
// execution order.
type StepName int

const (
	StepTranscription StepName = iota
	StepTranslation
	StepOptimization
	StepAIGeneration

	numSteps
)

var stepNames = [numSteps]string{
	StepTranscription: "transcription",
	StepTranslation:   "translation",
	StepOptimization:  "optimization",
	StepAIGeneration:  "ai_generation",
}

// StepOrder lists every step in execution order.
var StepOrder = [numSteps]StepName{StepTranscription, StepTranslation, StepOptimization, StepAIGeneration}

func (n StepName) String() string {
	if n < 0 || n >= numSteps {
		return fmt.Sprintf("step(%d)", int(n))
	}
	return stepNames[n]
}

// ParseStepName maps a persisted step name back to its enum value.
func ParseStepName(s string) (StepName, bool) {
	for i, name := range stepNames {
		if name == s {
			return StepName(i), true
		}
	}
	return 0, false
}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepSuccess    StepStatus = "success"
	StepFailed     StepStatus = "failed"
)

// Step is the recorded state of one pipeline phase.
type Step struct {
	Name      StepName
	Status    StepStatus
	Timestamp time.Time
	Error     string
}

// Steps holds one record per step, indexed by StepName.
type Steps [numSteps]Step

// NewSteps returns all four steps in the pending state.
func NewSteps() Steps {
	var s Steps
	for i := range s {
		s[i] = Step{Name: StepName(i), Status: StepPending}
	}
	return s
}

// Get returns the record for name.
func (s Steps) Get(name StepName) Step {
	return s[name]
}

// InProgress returns the step currently running, if any.
func (s Steps) InProgress() (StepName, bool) {
	for i := range s {
		if s[i].Status == StepInProgress {
			return StepName(i), true
		}
	}
	return 0, false
}

// AllSucceeded reports whether every step finished successfully.
func (s Steps) AllSucceeded() bool {
	for i := range s {
		if s[i].Status != StepSuccess {
			return false
		}
	}
	return true
}

// Start moves name from pending to in_progress. Every earlier step must
// have succeeded and no other step may be running.
func (s *Steps) Start(name StepName, now time.Time) error {
	if err := checkName(name); err != nil {
		return err
	}
	if running, ok := s.InProgress(); ok {
		return fmt.Errorf("cannot start %s: %s is in progress", name, running)
	}
	for i := StepName(0); i < name; i++ {
		if s[i].Status != StepSuccess {
			return fmt.Errorf("cannot start %s: %s is %s", name, i, s[i].Status)
		}
	}
	return s.transition(name, StepInProgress, "", now)
}

// Succeed moves name from in_progress to success.
func (s *Steps) Succeed(name StepName, now time.Time) error {
	if err := checkName(name); err != nil {
		return err
	}
	return s.transition(name, StepSuccess, "", now)
}

// Fail moves name from in_progress to failed and records msg.
func (s *Steps) Fail(name StepName, msg string, now time.Time) error {
	if err := checkName(name); err != nil {
		return err
	}
	return s.transition(name, StepFailed, msg, now)
}

func (s *Steps) transition(name StepName, to StepStatus, msg string, now time.Time) error {
	from := s[name].Status
	if !isValidTransition(from, to) {
		return fmt.Errorf("invalid step transition for %s: %s -> %s", name, from, to)
	}
	s[name].Status = to
	s[name].Timestamp = now.UTC()
	s[name].Error = msg
	return nil
}

func checkName(name StepName) error {
	if name < 0 || name >= numSteps {
		return fmt.Errorf("unknown step %d", int(name))
	}
	return nil
}

// isValidTransition enforces pending -> in_progress -> {success, failed}.
func isValidTransition(from, to StepStatus) bool {
	switch from {
	case StepPending:
		return to == StepInProgress
	case StepInProgress:
		return to == StepSuccess || to == StepFailed
	default:
		return false
	}
}

type stepRecord struct {
	Step      string     `json:"step"`
	Status    StepStatus `json:"status"`
	Timestamp string     `json:"timestamp"`
	Error     *string    `json:"error"`
}

// MarshalJSON writes the ordered {step, status, timestamp, error} list.
func (s Steps) MarshalJSON() ([]byte, error) {
	out := make([]stepRecord, 0, len(s))
	for i, st := range s {
		rec := stepRecord{Step: StepName(i).String(), Status: st.Status}
		if rec.Status == "" {
			rec.Status = StepPending
		}
		if !st.Timestamp.IsZero() {
			rec.Timestamp = st.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		if st.Error != "" {
			msg := st.Error
			rec.Error = &msg
		}
		out = append(out, rec)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the persisted list. Missing, empty or unreadable data
// yields four pending steps; unknown step names are ignored.
func (s *Steps) UnmarshalJSON(data []byte) error {
	*s = NewSteps()
	var recs []stepRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil
	}
	for _, rec := range recs {
		name, ok := ParseStepName(rec.Step)
		if !ok {
			continue
		}
		st := Step{Name: name, Status: rec.Status}
		switch st.Status {
		case StepPending, StepInProgress, StepSuccess, StepFailed:
		default:
			st.Status = StepPending
		}
		if rec.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp); err == nil {
				st.Timestamp = ts
			}
		}
		if rec.Error != nil {
			st.Error = *rec.Error
		}
		s[name] = st
	}
	return nil
}
