// internal/server/server.go
// Package server exposes Flowise workflows through an OpenAI-compatible HTTP API so
// OpenWebUI can attach flowpipe as a regular OpenAI connection.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/metrics"
	"github.com/mwiater/flowpipe/internal/pipe"
)

const (
	// ChatIDHeader carries the OpenWebUI chat id when forwarded by the front-end.
	ChatIDHeader = "X-OpenWebUI-Chat-Id"

	shutdownTimeout = 10 * time.Second
	maxBodyBytes    = 4 << 20
)

// Server serves the OpenAI-compatible endpoints backed by a pipe.
type Server struct {
	pipe       *pipe.Pipe
	aggregator *metrics.Aggregator
	listen     string
	apiKey     string
	started    time.Time
}

// New returns a Server for p. aggregator may be nil when metrics are disabled.
func New(cfg *appconfig.Config, p *pipe.Pipe, aggregator *metrics.Aggregator) *Server {
	return &Server{
		pipe:       p,
		aggregator: aggregator,
		listen:     cfg.ListenAddr(),
		apiKey:     strings.TrimSpace(cfg.ServerAPIKey),
		started:    time.Now(),
	}
}

// Handler returns the routed and authenticated HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/metrics", s.handleMetrics)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return s.requireAPIKey(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		defer close(idleConnsClosed)
		<-ctx.Done()
		logging.LogEvent("[SERVER] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.LogEvent("[SERVER] shutdown error: %v", err)
		}
	}()

	logging.LogEvent("[SERVER] listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-idleConnsClosed
	logging.LogEvent("[SERVER] stopped")
	return nil
}

// requireAPIKey enforces the bearer key on /v1 routes when one is configured.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	if s.apiKey == "" {
		return next
	}
	want := []byte("Bearer " + s.apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") {
			got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid_request_error", "invalid_api_key", "Invalid API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.LogEvent("[SERVER] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, errType, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Message: message, Type: errType, Code: code}})
}
