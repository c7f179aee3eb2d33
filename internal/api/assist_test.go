package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"meeting-notes-go/internal/summarizer"
)

func jsonBody(s string) *bytes.Buffer {
	return bytes.NewBufferString(s)
}

// TestTranslate covers the success path and the default target language.
func TestTranslate(t *testing.T) {
	ts := newTestServer(t)
	ts.assist.set("Hola a todos", nil)

	resp := ts.do(t, http.MethodPost, "/api/translate", "u1", jsonBody(`{"text":"Hello everyone"}`), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]string
	decode(t, resp, &out)
	if out["translated_text"] != "Hola a todos" {
		t.Fatalf("out = %v", out)
	}
	if got := ts.assist.target(); got != summarizer.DefaultTargetLanguage {
		t.Fatalf("target = %q", got)
	}

	resp = ts.do(t, http.MethodPost, "/api/translate", "u1", jsonBody(`{"text":"Hello","target_language":"fr"}`), "application/json")
	if resp.StatusCode != http.StatusOK || ts.assist.target() != "fr" {
		t.Fatalf("status = %d target = %q", resp.StatusCode, ts.assist.target())
	}
}

// TestTranslateErrors maps request and service failures to status codes.
func TestTranslateErrors(t *testing.T) {
	ts := newTestServer(t)
	cases := []struct {
		name    string
		user    string
		body    string
		err     error
		status  int
		message string
	}{
		{"no user", "", `{"text":"hi"}`, nil, http.StatusUnauthorized, "missing X-User-ID header"},
		{"blank text", "u1", `{"text":"  "}`, nil, http.StatusBadRequest, "No text provided"},
		{"bad json", "u1", `{"text":`, nil, http.StatusBadRequest, "invalid request body"},
		{"empty reply", "u1", `{"text":"hi"}`, fmt.Errorf("translate: %w", summarizer.ErrEmptyResponse), http.StatusInternalServerError, "Translation failed: empty response from API"},
		{"service down", "u1", `{"text":"hi"}`, errors.New("dial tcp: refused"), http.StatusInternalServerError, "Translation service unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts.assist.set("", tc.err)
			resp := ts.do(t, http.MethodPost, "/api/translate", tc.user, jsonBody(tc.body), "application/json")
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			var out map[string]string
			decode(t, resp, &out)
			if out["error"] != tc.message {
				t.Fatalf("error = %q", out["error"])
			}
		})
	}
}

// TestChat answers without a user header and stamps the reply.
func TestChat(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/chat", "", jsonBody(`{"message":"hello"}`), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]string
	decode(t, resp, &out)
	if out["response"] != "echo: hello" {
		t.Fatalf("out = %v", out)
	}
	if _, err := time.Parse(time.RFC3339, out["timestamp"]); err != nil {
		t.Fatalf("timestamp %q: %v", out["timestamp"], err)
	}

	resp = ts.do(t, http.MethodPost, "/api/chat", "", jsonBody(`{"message":""}`), "application/json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty message status = %d", resp.StatusCode)
	}
}
