package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"meeting-notes-go/internal/config"
	"meeting-notes-go/internal/logger"
)

// Status is the provider's verdict on a transcription.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is what the provider returned for one recording.
type Result struct {
	Status Status
	Text   string
	Error  string
}

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (Result, error)
}

// New returns the mock transcriber when cfg.Mock is set, the HTTP client otherwise.
func New(cfg config.TranscriptionConfig, log *logger.Logger) Transcriber {
	if cfg.Mock {
		logger.OrDiscard(log).Component("transcription").Info("mock transcription mode ON")
		return Mock{Text: cfg.MockText}
	}
	return NewClient(cfg, log)
}

// Mock returns fixed text for any readable file.
type Mock struct {
	Text string
}

func (m Mock) Transcribe(ctx context.Context, path string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("open recording: %w", err)
	}
	return Result{Status: StatusOK, Text: m.Text}, nil
}

// Client speaks the AssemblyAI-style REST flow: upload the audio, create a
// transcript job, then poll it until it settles.
type Client struct {
	cfg  config.TranscriptionConfig
	http *http.Client
	log  *logrus.Entry
}

func NewClient(cfg config.TranscriptionConfig, log *logger.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
		log:  logger.OrDiscard(log).Component("transcription"),
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	SpeakerLabels     bool   `json:"speaker_labels"`
	AutoHighlights    bool   `json:"auto_highlights"`
	LanguageDetection bool   `json:"language_detection"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe runs the full provider flow for the file at path. Transport
// failures come back as errors; a provider-side failure comes back as a
// Result with StatusError.
func (c *Client) Transcribe(ctx context.Context, path string) (Result, error) {
	log := c.log.WithField("path", path)
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("open recording: %w", err)
	}

	uploadURL, err := c.upload(ctx, path)
	if err != nil {
		return Result{}, err
	}
	log.Info("audio uploaded")

	id, err := c.publish(ctx, uploadURL)
	if err != nil {
		return Result{}, err
	}
	log = log.WithField("transcript_id", id)
	log.Info("transcript requested")

	res, err := c.poll(ctx, id)
	if err != nil {
		return Result{}, err
	}
	log.WithFields(logrus.Fields{"status": res.Status, "chars": len(res.Text)}).Info("transcription finished")
	return res, nil
}

func (c *Client) upload(ctx context.Context, path string) (string, error) {
	var resp uploadResponse
	err := c.doJSON(ctx, func() (*http.Request, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("open recording: %w", err))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v2/upload"), f)
		if err != nil {
			f.Close()
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		return req, nil
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	if resp.UploadURL == "" {
		return "", errors.New("upload audio: provider returned no upload url")
	}
	return resp.UploadURL, nil
}

func (c *Client) publish(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(transcriptRequest{
		AudioURL:          audioURL,
		SpeakerLabels:     c.cfg.SpeakerLabels,
		AutoHighlights:    c.cfg.AutoHighlights,
		LanguageDetection: c.cfg.LanguageDetection,
	})
	if err != nil {
		return "", fmt.Errorf("marshal transcript request: %w", err)
	}
	var resp transcriptResponse
	err = c.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v2/transcript"), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create transcript: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("create transcript: provider returned no id")
	}
	return resp.ID, nil
}

func (c *Client) poll(ctx context.Context, id string) (Result, error) {
	attempts := c.cfg.PollAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		var s transcriptResponse
		err := c.doJSON(ctx, func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v2/transcript/"+id), nil)
		}, &s)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			c.log.WithField("error", err.Error()).Warn("status check failed")
		} else {
			switch strings.ToLower(s.Status) {
			case "completed":
				return Result{Status: StatusOK, Text: s.Text}, nil
			case "error":
				return Result{Status: StatusError, Error: s.Error}, nil
			}
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
	return Result{}, fmt.Errorf("transcription timeout after %d status checks", attempts)
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// doJSON sends the request built by build and decodes the JSON reply into
// target, retrying server errors and transport failures. build is called
// once per attempt so request bodies are fresh.
func (c *Client) doJSON(ctx context.Context, build func() (*http.Request, error), target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.HTTPTimeout

	op := func() error {
		req, err := build()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("request rejected %d: %s", resp.StatusCode, string(body)))
		}
		if len(body) == 0 {
			return errors.New("empty body")
		}
		if err := json.Unmarshal(body, target); err != nil {
			return backoff.Permanent(fmt.Errorf("json decode error: %v body=%s", err, string(body)))
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
