package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"meeting-notes-go/internal/config"
	"meeting-notes-go/internal/logger"
)

// Completer sends a prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// StatusError is returned when the gateway answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion gateway returned %d: %s", e.Code, e.Body)
}

// Permanent reports whether retrying the same request cannot help.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

// IsPermanent reports whether err is a client-side gateway rejection.
func IsPermanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Permanent()
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg  config.CompletionConfig
	http *http.Client
	log  *logrus.Entry
}

func NewClient(cfg config.CompletionConfig, log *logger.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.OrDiscard(log).Component("completion"),
	}
}

// New returns the mock completer when cfg.Mock is set, the HTTP client otherwise.
func New(cfg config.CompletionConfig, log *logger.Logger) Completer {
	if cfg.Mock {
		logger.OrDiscard(log).Component("completion").Info("mock LLM mode ON")
		return Mock{}
	}
	return NewClient(cfg, log)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// Complete makes one request. Retrying is the caller's job.
func (c *Client) Complete(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = c.cfg.Model
	}
	data, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	log := c.log.WithField("model", model)
	log.WithField("payload_len", len(data)).Debug("sending completion request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithField("error", err.Error()).Warn("completion request failed")
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	log.WithField("http_status", resp.StatusCode).Debug("completion response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	content, err := extractContentFromChoices(body)
	if err != nil {
		return "", err
	}
	return content, nil
}

// extractContentFromChoices reads choices[0].message.content from an
// OpenAI-style response.
func extractContentFromChoices(body []byte) (string, error) {
	var obj struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(obj.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	return strings.TrimSpace(obj.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
