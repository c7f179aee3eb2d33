package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"meeting-notes-go/internal/summarizer"
)

const maxAssistBody = 1 << 20

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

// POST /api/translate
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "translate")

	var req translateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAssistBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = summarizer.DefaultTargetLanguage
	}

	out, err := s.assist.Translate(r.Context(), req.Text, req.TargetLanguage)
	switch {
	case errors.Is(err, summarizer.ErrEmptyResponse):
		log.WithField("error", err.Error()).Warn("translation came back empty")
		writeError(w, http.StatusInternalServerError, "Translation failed: empty response from API")
		return
	case err != nil:
		log.WithField("error", err.Error()).Error("translation failed")
		writeError(w, http.StatusInternalServerError, "Translation service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"translated_text": out})
}

type chatRequest struct {
	Message string `json:"message"`
}

// POST /api/chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "chat")

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAssistBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "No message provided")
		return
	}

	reply, ai, err := s.assist.Reply(r.Context(), req.Message)
	if err != nil {
		log.WithField("error", err.Error()).Error("chat failed")
		writeError(w, http.StatusInternalServerError, "Sorry, I'm having trouble right now. Please try again.")
		return
	}
	if !ai {
		log.Info("served fallback reply")
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"response":  reply,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}
