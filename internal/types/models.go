package types

import "time"

// JobStatus is the overall lifecycle state of a meeting job.
type JobStatus string

const (
	JobStatusUploaded   JobStatus = "uploaded"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is one uploaded meeting recording and its processing record.
type Job struct {
	ID                  string         `json:"id"`
	UserID              string         `json:"user_id"`
	Title               string         `json:"title"`
	Filename            string         `json:"filename"`
	Language            string         `json:"language"`
	UploadDate          time.Time      `json:"upload_date"`
	UpdatedAt           time.Time      `json:"updated_at"`
	Status              JobStatus      `json:"status"`
	Steps               Steps          `json:"processing_steps"`
	CurrentStepProgress int            `json:"current_step_progress"`
	Error               string         `json:"error,omitempty"`
	Transcription       *Transcription `json:"transcription,omitempty"`
	Notes               *Notes         `json:"notes,omitempty"`
	HasTranscription    bool           `json:"has_transcription"`
	HasNotes            bool           `json:"has_notes"`
}

type Transcription struct {
	Raw        string `json:"raw"`
	Translated string `json:"translated"`
	Optimized  string `json:"optimized"`
}

// Notes is the structured result of summarization. Raw and Translated carry
// the transcript text alongside whichever path produced the other fields.
type Notes struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
	Decisions   []string `json:"decisions"`
	Sentiment   string   `json:"sentiment"`
	Raw         string   `json:"raw,omitempty"`
	Translated  string   `json:"translated,omitempty"`
}
