// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package server provides the HTTP + WebSocket API for remote-controlled
// fetches.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comfydodi/civitaifetch/pkg/civitai"
)

// Config holds server configuration.
type Config struct {
	Addr           string
	Port           int
	Token          string   // CivitAI API token
	SearchPaths    []string // Model directories (not configurable via API)
	LedgerPath     string   // Download ledger file (not configurable via API)
	Endpoint       string   // Custom registry endpoint (mirrors, tests)
	Fallback       string
	TimeoutSeconds int
	Connections    int
	PreferTools    bool
	AllowedOrigins []string // CORS origins
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           "0.0.0.0",
		Port:           8080,
		SearchPaths:    []string{"./Models"},
		LedgerPath:     "download_history.json",
		Fallback:       civitai.FallbackAuto,
		TimeoutSeconds: 20,
		Connections:    16,
	}
}

// Server is the HTTP server for civitaifetch.
//
// Fetches run one at a time: the underlying ledger's load-mutate-save cycle
// is not safe under concurrent invocations, so concurrent fetch requests are
// rejected rather than queued.
type Server struct {
	mu         sync.Mutex // guards config updates
	config     Config
	httpServer *http.Server
	wsHub      *WSHub
	log        *logrus.Logger

	fetchMu sync.Mutex // single-flight guard for fetches
}

// New creates a new server with the given configuration.
func New(cfg Config, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		config: cfg,
		wsHub:  NewWSHub(log),
		log:    log,
	}
}

// ListenAndServe starts the HTTP server and blocks until ctx is canceled or
// the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go s.wsHub.Run()

	mux := http.NewServeMux()
	s.registerAPIRoutes(mux)

	addr := fmt.Sprintf("%s:%d", s.config.Addr, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.corsMiddleware(s.loggingMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // fetches stream for as long as the transfer takes
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Infof("server starting on http://%s", addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// registerAPIRoutes sets up all API endpoints.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/fetch", s.handleFetch)
	mux.HandleFunc("GET /api/ledger", s.handleLedger)
	mux.HandleFunc("GET /api/paths", s.handlePaths)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debugf("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			allowed := false
			if len(s.config.AllowedOrigins) == 0 {
				allowed = true
			} else {
				for _, o := range s.config.AllowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// settings returns a civitai.Settings snapshot built from the current
// server configuration.
func (s *Server) settings() civitai.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := civitai.DefaultSettings()
	cfg.Token = s.config.Token
	cfg.SearchPaths = s.config.SearchPaths
	cfg.TimeoutSeconds = s.config.TimeoutSeconds
	cfg.Fallback = s.config.Fallback
	cfg.Connections = s.config.Connections
	cfg.PreferTools = s.config.PreferTools
	if s.config.Endpoint != "" {
		cfg.Endpoint = s.config.Endpoint
	}
	return cfg
}
