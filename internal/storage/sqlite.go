package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"meeting-notes-go/internal/logger"
	"meeting-notes-go/internal/types"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("job not found")

// JobStore persists meeting jobs.
type JobStore interface {
	Create(ctx context.Context, job *types.Job) error
	Get(ctx context.Context, id string) (*types.Job, error)
	List(ctx context.Context, userID string, limit int) ([]*types.Job, error)
	ListByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error)
	Update(ctx context.Context, id string, f Fields) error
	Delete(ctx context.Context, id string) error
}

// Fields is a partial update. Only non-nil fields are written, so two
// writers touching different fields never clobber each other.
type Fields struct {
	Status        *types.JobStatus
	Steps         *types.Steps
	Progress      *int
	Error         *string
	Transcription *types.Transcription
	Notes         *types.Notes
}

const schema = `CREATE TABLE IF NOT EXISTS meetings (
	id                    TEXT PRIMARY KEY,
	user_id               TEXT NOT NULL,
	title                 TEXT NOT NULL,
	filename              TEXT NOT NULL,
	language              TEXT NOT NULL DEFAULT 'en',
	upload_date           TEXT NOT NULL,
	updated_at            TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'uploaded',
	processing_steps      TEXT NOT NULL DEFAULT '[]',
	current_step_progress INTEGER NOT NULL DEFAULT 0,
	error                 TEXT NOT NULL DEFAULT '',
	transcription         TEXT NOT NULL DEFAULT '{}',
	notes                 TEXT NOT NULL DEFAULT '{}',
	has_transcription     INTEGER NOT NULL DEFAULT 0,
	has_notes             INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_meetings_user ON meetings(user_id, upload_date);
CREATE INDEX IF NOT EXISTS idx_meetings_status ON meetings(status);`

const selectColumns = `id, user_id, title, filename, language, upload_date, updated_at, status,
	processing_steps, current_step_progress, error, transcription, notes, has_transcription, has_notes`

// SQLiteStore is a JobStore backed by a single SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	log *logrus.Entry
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, log *logger.Logger) (*SQLiteStore, error) {
	l := logger.OrDiscard(log).Component("storage.sqlite").WithField("path", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	l.Info("job store ready")
	return &SQLiteStore{db: db, log: l, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, job *types.Job) error {
	now := s.now().UTC()
	if job.UploadDate.IsZero() {
		job.UploadDate = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = types.JobStatusUploaded
	}
	if job.Language == "" {
		job.Language = "en"
	}
	steps, err := json.Marshal(job.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	tr, err := marshalOptional(job.Transcription)
	if err != nil {
		return err
	}
	notes, err := marshalOptional(job.Notes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO meetings (id, user_id, title, filename, language, upload_date, updated_at,
		status, processing_steps, current_step_progress, error, transcription, notes, has_transcription, has_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.Title, job.Filename, job.Language,
		formatTime(job.UploadDate), formatTime(job.UpdatedAt), string(job.Status),
		string(steps), job.CurrentStepProgress, job.Error, tr, notes,
		job.Transcription != nil, job.Notes != nil)
	if err != nil {
		s.log.WithField("job_id", job.ID).WithField("error", err.Error()).Error("create job failed")
		return fmt.Errorf("insert job: %w", err)
	}
	job.HasTranscription = job.Transcription != nil
	job.HasNotes = job.Notes != nil
	s.log.WithField("job_id", job.ID).Debug("job created")
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM meetings WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List returns a user's jobs, newest upload first. limit <= 0 means no limit.
func (s *SQLiteStore) List(ctx context.Context, userID string, limit int) ([]*types.Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM meetings
		WHERE user_id = ? ORDER BY upload_date DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collect(rows)
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM meetings
		WHERE status = ? ORDER BY updated_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	return collect(rows)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, f Fields) error {
	var (
		sets []string
		args []any
	)
	if f.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Steps != nil {
		b, err := json.Marshal(*f.Steps)
		if err != nil {
			return fmt.Errorf("marshal steps: %w", err)
		}
		sets = append(sets, "processing_steps = ?")
		args = append(args, string(b))
	}
	if f.Progress != nil {
		sets = append(sets, "current_step_progress = ?")
		args = append(args, *f.Progress)
	}
	if f.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *f.Error)
	}
	if f.Transcription != nil {
		b, err := json.Marshal(f.Transcription)
		if err != nil {
			return fmt.Errorf("marshal transcription: %w", err)
		}
		sets = append(sets, "transcription = ?", "has_transcription = 1")
		args = append(args, string(b))
	}
	if f.Notes != nil {
		b, err := json.Marshal(f.Notes)
		if err != nil {
			return fmt.Errorf("marshal notes: %w", err)
		}
		sets = append(sets, "notes = ?", "has_notes = 1")
		args = append(args, string(b))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(s.now()), id)

	res, err := s.db.ExecContext(ctx, `UPDATE meetings SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.log.WithField("job_id", id).Info("job deleted")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*types.Job, error) {
	var (
		job                           types.Job
		uploadDate, updatedAt, status string
		steps, tr, notes              string
		hasTr, hasNotes               bool
	)
	err := row.Scan(&job.ID, &job.UserID, &job.Title, &job.Filename, &job.Language,
		&uploadDate, &updatedAt, &status, &steps, &job.CurrentStepProgress, &job.Error,
		&tr, &notes, &hasTr, &hasNotes)
	if err != nil {
		return nil, err
	}
	job.UploadDate = parseTime(uploadDate)
	job.UpdatedAt = parseTime(updatedAt)
	job.Status = types.JobStatus(status)
	if err := json.Unmarshal([]byte(steps), &job.Steps); err != nil {
		job.Steps = types.NewSteps()
	}
	job.HasTranscription = hasTr
	job.HasNotes = hasNotes
	if hasTr {
		job.Transcription = &types.Transcription{}
		if err := json.Unmarshal([]byte(tr), job.Transcription); err != nil {
			return nil, fmt.Errorf("decode transcription: %w", err)
		}
	}
	if hasNotes {
		job.Notes = &types.Notes{}
		if err := json.Unmarshal([]byte(notes), job.Notes); err != nil {
			return nil, fmt.Errorf("decode notes: %w", err)
		}
	}
	return &job, nil
}

func collect(rows *sql.Rows) ([]*types.Job, error) {
	defer rows.Close()
	var out []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func marshalOptional(v any) (string, error) {
	switch t := v.(type) {
	case *types.Transcription:
		if t == nil {
			return "{}", nil
		}
	case *types.Notes:
		if t == nil {
			return "{}", nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}

// timeLayout has fixed-width fractional seconds so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
