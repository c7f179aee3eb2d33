// Package summarizer turns a cleaned transcript into structured meeting
// notes. It asks a completion service first and falls back to a
// deterministic heuristic whenever that path yields nothing usable.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"meeting-notes-go/internal/completion"
	"meeting-notes-go/internal/config"
	"meeting-notes-go/internal/logger"
	"meeting-notes-go/internal/normalizer"
	"meeting-notes-go/internal/types"
)

// Mode names the path that produced a set of notes.
type Mode string

const (
	ModeAI        Mode = "ai"
	ModeChunked   Mode = "chunked"
	ModeHeuristic Mode = "heuristic"
)

// ErrEmptyResponse is returned when every attempt got a blank reply.
var ErrEmptyResponse = errors.New("empty response from completion service")

// Input is everything the engine needs for one meeting.
type Input struct {
	Title string
	// Text is the cleaned transcript that is summarized.
	Text       string
	Raw        string
	Translated string
	Features   normalizer.Features
}

type Engine struct {
	llm     completion.Completer
	cfg     config.SummarizerConfig
	model   string
	notes   *jsonschema.Schema
	section *jsonschema.Schema
	log     *logrus.Entry
}

// New builds an engine. model is passed through to every completion call.
func New(llm completion.Completer, cfg config.SummarizerConfig, model string, log *logger.Logger) (*Engine, error) {
	notes, err := compileSchema("notes.json", notesSchema("summary", "key_points"))
	if err != nil {
		return nil, err
	}
	section, err := compileSchema("section.json", notesSchema("summary"))
	if err != nil {
		return nil, err
	}
	return &Engine{
		llm:     llm,
		cfg:     cfg,
		model:   model,
		notes:   notes,
		section: section,
		log:     logger.OrDiscard(log).Component("summarizer"),
	}, nil
}

// Summarize always returns usable notes. The transcript text is carried on
// the result whichever path produced the structured fields.
func (e *Engine) Summarize(ctx context.Context, in Input) (types.Notes, Mode) {
	log := e.log.WithField("title", in.Title).WithField("chars", utf8.RuneCountInString(in.Text))

	var (
		notes types.Notes
		mode  Mode
		ok    bool
	)
	switch {
	case strings.TrimSpace(in.Text) == "":
		log.Info("empty transcript, using heuristic notes")
	case utf8.RuneCountInString(in.Text) > e.cfg.ChunkThreshold:
		notes, ok = e.summarizeChunks(ctx, in)
		mode = ModeChunked
	default:
		notes, ok = e.summarizeOnce(ctx, in)
		mode = ModeAI
	}
	if !ok {
		notes = Heuristic(in.Title, in.Text, in.Features)
		mode = ModeHeuristic
	}

	notes.KeyPoints = nonNil(notes.KeyPoints)
	notes.ActionItems = nonNil(notes.ActionItems)
	notes.Decisions = nonNil(notes.Decisions)
	notes.Raw = in.Raw
	notes.Translated = in.Translated

	log.WithFields(logrus.Fields{"mode": mode, "key_points": len(notes.KeyPoints)}).Info("notes generated")
	return notes, mode
}

func (e *Engine) summarizeOnce(ctx context.Context, in Input) (types.Notes, bool) {
	resp, err := e.complete(ctx, BuildPrompt(in.Title, in.Text))
	if err != nil {
		e.log.WithField("error", err.Error()).Warn("completion failed, falling back")
		return types.Notes{}, false
	}
	doc, err := parseDocument(resp, e.notes)
	if err != nil {
		e.log.WithField("error", err.Error()).Warn("unusable completion response, falling back")
		return types.Notes{}, false
	}
	if len(doc.KeyPoints) == 0 {
		e.log.Warn("no key points extracted, falling back")
		return types.Notes{}, false
	}
	return types.Notes{
		Summary:     doc.Summary,
		KeyPoints:   doc.KeyPoints,
		ActionItems: doc.ActionItems,
		Decisions:   doc.Decisions,
		Sentiment:   doc.Sentiment,
	}, true
}

// complete calls the completion service under the configured retry policy.
// Empty replies count as failures; client-side rejections are not retried.
func (e *Engine) complete(ctx context.Context, prompt string) (string, error) {
	var (
		out     string
		attempt int
	)
	op := func() error {
		attempt++
		resp, err := e.llm.Complete(ctx, prompt, e.model)
		if err != nil {
			if completion.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if strings.TrimSpace(resp) == "" {
			return ErrEmptyResponse
		}
		out = resp
		return nil
	}
	notify := func(err error, wait time.Duration) {
		e.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		}).Warn("completion attempt failed, retrying")
	}
	if err := backoff.RetryNotify(op, e.retryPolicy(ctx), notify); err != nil {
		return "", fmt.Errorf("completion failed after %d attempt(s): %w", attempt, err)
	}
	return out, nil
}

func (e *Engine) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if e.cfg.Retry.InitialInterval > 0 {
		b.InitialInterval = e.cfg.Retry.InitialInterval
	}
	b.MaxElapsedTime = e.cfg.Retry.MaxElapsed

	retries := e.cfg.Retry.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
