package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meeting-notes-go/internal/config"
)

func testClient(url string) *Client {
	return NewClient(config.CompletionConfig{BaseURL: url, APIKey: "k", Model: "m1", Timeout: 5 * time.Second}, nil)
}

// TestCompleteReturnsContent verifies request shape and content extraction.
func TestCompleteReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "m2" || len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"summary\":\"x\"}  "}}]}`))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).Complete(context.Background(), "hello", "m2")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != `{"summary":"x"}` {
		t.Fatalf("content = %q", got)
	}
}

// TestCompleteDefaultsModel checks the configured model is used when none is given.
func TestCompleteDefaultsModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "m1" {
			t.Errorf("model = %q", req.Model)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Complete(context.Background(), "p", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

// TestCompleteStatusError checks non-2xx responses become StatusError.
func TestCompleteStatusError(t *testing.T) {
	for _, tc := range []struct {
		code      int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.code)
		}))
		_, err := testClient(srv.URL).Complete(context.Background(), "p", "")
		srv.Close()

		var se *StatusError
		if !errors.As(err, &se) || se.Code != tc.code {
			t.Fatalf("code %d: err = %v", tc.code, err)
		}
		if IsPermanent(err) != tc.permanent {
			t.Fatalf("code %d: permanent = %v", tc.code, IsPermanent(err))
		}
	}
}

// TestCompleteNoChoices treats an empty choices list as an error.
func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Complete(context.Background(), "p", ""); err == nil {
		t.Fatal("expected error")
	}
}

// TestMockReturnsJSON checks the mock's document is valid JSON.
func TestMockReturnsJSON(t *testing.T) {
	out, err := Mock{}.Complete(context.Background(), "p", "")
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("mock output not JSON: %v", err)
	}
	if _, ok := New(config.CompletionConfig{Mock: true}, nil).(Mock); !ok {
		t.Fatal("New should return Mock in mock mode")
	}
}
