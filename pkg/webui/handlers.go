package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alantheprice/askweb/pkg/configuration"
	"github.com/alantheprice/askweb/pkg/llm"
	"github.com/alantheprice/askweb/pkg/orchestration"
)

const maxAskBodyBytes = 1 << 20

// AskPayload is the JSON body of an ask. Every field except Query falls
// back to the server settings when omitted.
type AskPayload struct {
	Query         string        `json:"query"`
	History       []llm.Message `json:"history,omitempty"`
	Model         *string       `json:"model,omitempty"`
	AuthToken     *string       `json:"auth_token,omitempty"`
	BaseURL       *string       `json:"base_url,omitempty"`
	UseCustomLLM  *bool         `json:"use_custom_llm,omitempty"`
	SearchEnabled *bool         `json:"search_enabled,omitempty"`
	HistoryLimit  *int          `json:"history_limit,omitempty"`
	Language      *string       `json:"language,omitempty"`
	// Stream false returns the answer as one token instead of fragments.
	Stream *bool `json:"stream,omitempty"`
}

// buildRequest merges payload over the server settings.
func (s *Server) buildRequest(payload AskPayload) (orchestration.Request, error) {
	if strings.TrimSpace(payload.Query) == "" {
		return orchestration.Request{}, errors.New("query is required")
	}

	settings := s.settings
	if payload.Model != nil {
		settings.Model = *payload.Model
	}
	if payload.AuthToken != nil {
		settings.AuthToken = *payload.AuthToken
	}
	if payload.BaseURL != nil {
		settings.BaseURL = *payload.BaseURL
	}
	if payload.UseCustomLLM != nil {
		settings.UseCustomLLM = *payload.UseCustomLLM
	}
	if payload.SearchEnabled != nil {
		settings.SearchEnabled = *payload.SearchEnabled
	}
	if payload.HistoryLimit != nil {
		if *payload.HistoryLimit < 0 || *payload.HistoryLimit > configuration.MaxHistoryLimit {
			return orchestration.Request{}, fmt.Errorf("history_limit must be between 0 and %d", configuration.MaxHistoryLimit)
		}
		settings.HistoryLimit = *payload.HistoryLimit
	}
	if payload.Language != nil {
		settings.Language = *payload.Language
	}

	prompt := settings.PromptOptions()
	return orchestration.Request{
		Query:         payload.Query,
		History:       payload.History,
		Model:         settings.Model,
		AuthToken:     settings.AuthToken,
		BaseURL:       settings.BaseURL,
		UseCustomLLM:  settings.UseCustomLLM,
		SearchEnabled: settings.SearchEnabled,
		NoStream:      payload.Stream != nil && !*payload.Stream,
		Prompt:        &prompt,
	}, nil
}

// handleIndex serves the chat page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(data)
}

// handleHealth reports liveness for health checks and the chat page.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).String(),
		"queries":     s.queryCount.Load(),
		"connections": s.countConnections(),
	})
}

// handleAPISettings returns the server defaults with secrets masked.
func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Redacted())
}

// handleAPIAsk streams the answer to one question as chunked plain text.
func (s *Server) handleAPIAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	var payload AskPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	req, err := s.buildRequest(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.queryCount.Add(1)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for token := range s.asker.AskInternet(r.Context(), req) {
		if _, err := w.Write([]byte(token)); err != nil {
			s.logger.LogError(fmt.Errorf("client went away mid-answer: %w", err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
