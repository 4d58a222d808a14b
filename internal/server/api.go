// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/comfydodi/civitaifetch/pkg/civitai"
)

// FetchRequest is the request body for starting a fetch. Model directories
// and the ledger path are NOT configurable via API; the server uses its own
// configuration.
type FetchRequest struct {
	Identifier   string `json:"identifier"`
	ExistingFile string `json:"existingFile,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	PathLabel    string `json:"pathLabel,omitempty"`
}

// FetchResponse reports a finished fetch.
type FetchResponse struct {
	FileName string `json:"fileName"`
	Cached   bool   `json:"cached"`
}

// SettingsResponse represents current settings.
type SettingsResponse struct {
	Token          string   `json:"token,omitempty"`
	SearchPaths    []string `json:"searchPaths"`
	LedgerPath     string   `json:"ledgerPath"`
	Fallback       string   `json:"fallback"`
	TimeoutSeconds int      `json:"timeoutSeconds"`
	Connections    int      `json:"connections"`
	PreferTools    bool     `json:"preferTools"`
	Endpoint       string   `json:"endpoint,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a simple success message.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Handlers ---

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleFetch runs the resolve-fetch-record pipeline synchronously and
// returns the resolved file name. Only one fetch runs at a time; concurrent
// requests get 409.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Identifier == "" && (req.ExistingFile == "" || req.ExistingFile == "none") {
		writeError(w, http.StatusBadRequest, "Missing required field: identifier", "")
		return
	}

	if !s.fetchMu.TryLock() {
		writeError(w, http.StatusConflict, "A fetch is already in progress", "")
		return
	}
	defer s.fetchMu.Unlock()

	cached := true
	progress := func(ev civitai.ProgressEvent) {
		if ev.Event == "fetch_start" {
			cached = false
		}
		s.wsHub.BroadcastEvent(ev)
	}

	store := civitai.NewLedgerStore(s.config.LedgerPath)
	loader := civitai.NewLoader(s.settings(), store, progress)

	name, err := loader.Load(r.Context(), civitai.Request{
		Identifier:   req.Identifier,
		ExistingFile: req.ExistingFile,
		APIKey:       req.APIKey,
		PathLabel:    req.PathLabel,
	})
	if err != nil {
		var verr *civitai.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "Invalid request", verr.Error())
			return
		}
		var rerr *civitai.RegistryError
		if errors.As(err, &rerr) {
			writeError(w, http.StatusBadGateway, "Registry resolution failed", rerr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Download failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, FetchResponse{FileName: name, Cached: cached})
}

// handleLedger returns the full download history.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	ledger := civitai.NewLedgerStore(s.config.LedgerPath).Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"ledger": ledger,
		"models": len(ledger),
	})
}

// handlePaths returns the configured model directories keyed by short label.
func (s *Server) handlePaths(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"paths":  civitai.ShortLabels(s.config.SearchPaths),
		"labels": civitai.SortedLabels(s.config.SearchPaths),
	})
}

// handleGetSettings returns current settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Don't expose the full token, just indicate it is set
	tokenStatus := ""
	if s.config.Token != "" {
		tokenStatus = "********" + s.config.Token[max(0, len(s.config.Token)-4):]
	}

	writeJSON(w, http.StatusOK, SettingsResponse{
		Token:          tokenStatus,
		SearchPaths:    s.config.SearchPaths,
		LedgerPath:     s.config.LedgerPath,
		Fallback:       s.config.Fallback,
		TimeoutSeconds: s.config.TimeoutSeconds,
		Connections:    s.config.Connections,
		PreferTools:    s.config.PreferTools,
		Endpoint:       s.config.Endpoint,
	})
}

// handleUpdateSettings updates settings. Model directories and the ledger
// path cannot be changed via API.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token          *string `json:"token,omitempty"`
		Fallback       *string `json:"fallback,omitempty"`
		TimeoutSeconds *int    `json:"timeoutSeconds,omitempty"`
		Connections    *int    `json:"connections,omitempty"`
		PreferTools    *bool   `json:"preferTools,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	s.mu.Lock()
	if req.Token != nil {
		s.config.Token = *req.Token
	}
	if req.Fallback != nil && *req.Fallback != "" {
		s.config.Fallback = *req.Fallback
	}
	if req.TimeoutSeconds != nil && *req.TimeoutSeconds > 0 {
		s.config.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Connections != nil && *req.Connections > 0 {
		s.config.Connections = *req.Connections
	}
	if req.PreferTools != nil {
		s.config.PreferTools = *req.PreferTools
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Settings updated",
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
