// main.go
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/mwiater/flowpipe/internal/providers"
)

// Workflow is one chatflow the mock serves.
type Workflow struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	Type       string `yaml:"type" json:"type,omitempty"`
	Category   string `yaml:"category" json:"category,omitempty"`
	Answer     string `yaml:"answer" json:"-"`
	FailStatus int    `yaml:"fail_status" json:"-"`
}

// Config is read from mockflowise.yml.
type Config struct {
	Host         string     `yaml:"host"`
	Port         int        `yaml:"port"`
	APIKey       string     `yaml:"api_key"`
	TokenDelayMS int        `yaml:"token_delay_ms"`
	Workflows    []Workflow `yaml:"workflows"`
}

type errResp struct {
	Message string `json:"message"`
}

type Server struct {
	cfg *Config
}

func main() {
	path := flag.String("config", "servers/mockflowise/mockflowise.yml", "path to the mock configuration")
	flag.Parse()

	cfg, err := loadConfig(*path)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           (&Server{cfg: cfg}).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("mock flowise config: host=%s port=%d workflows=%d token_delay_ms=%d", cfg.Host, cfg.Port, len(cfg.Workflows), cfg.TokenDelayMS)
	log.Printf("listening on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/v1/chatflows", s.handleChatflows)
	mux.HandleFunc("POST /api/v1/prediction/{id}", s.handlePrediction)
	return s.requireKey(mux)
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && strings.HasPrefix(r.URL.Path, "/api/") &&
			r.Header.Get("Authorization") != "Bearer "+s.cfg.APIKey {
			writeJSON(w, http.StatusUnauthorized, errResp{Message: "Unauthorized Access"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleChatflows(w http.ResponseWriter, r *http.Request) {
	log.Printf("chatflows request from %s", r.RemoteAddr)
	writeJSON(w, http.StatusOK, s.cfg.Workflows)
}

func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, ok := s.workflow(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errResp{Message: fmt.Sprintf("Chatflow %s not found", id)})
		return
	}
	if wf.FailStatus != 0 {
		writeJSON(w, wf.FailStatus, errResp{Message: "simulated failure"})
		return
	}

	var req providers.PredictionRequest
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{Message: "invalid JSON: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errResp{Message: "question is required"})
		return
	}
	log.Printf("prediction %s session=%s streaming=%v", id, req.OverrideConfig.SessionID, req.Streaming)

	answer := wf.answerFor(req.Question)
	if !req.Streaming {
		writeJSON(w, http.StatusOK, map[string]any{
			"text":      answer,
			"question":  req.Question,
			"chatId":    req.OverrideConfig.SessionID,
			"sessionId": req.OverrideConfig.SessionID,
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errResp{Message: "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	delay := time.Duration(s.cfg.TokenDelayMS) * time.Millisecond
	send := func(event string, data any) bool {
		payload, _ := json.Marshal(map[string]any{"event": event, "data": data})
		if _, err := fmt.Fprintf(w, "message:\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send("start", "") {
		return
	}
	for _, tok := range tokenize(answer) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
		if !send("token", tok) {
			return
		}
	}
	send("end", "[DONE]")
}

func (s *Server) workflow(id string) (Workflow, bool) {
	for _, wf := range s.cfg.Workflows {
		if wf.ID == id {
			return wf, true
		}
	}
	return Workflow{}, false
}

func (wf Workflow) answerFor(question string) string {
	if wf.Answer != "" {
		return wf.Answer
	}
	return fmt.Sprintf("%s received: %s", wf.Name, question)
}

// tokenize splits s into word tokens, keeping the separating spaces.
func tokenize(s string) []string {
	var out []string
	for i, word := range strings.Split(s, " ") {
		if i > 0 {
			word = " " + word
		}
		out = append(out, word)
	}
	return out
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if len(cfg.Workflows) == 0 {
		return nil, errors.New("at least one workflow is required")
	}
	for i, wf := range cfg.Workflows {
		if strings.TrimSpace(wf.ID) == "" {
			return nil, fmt.Errorf("workflow %d has no id", i)
		}
	}
	return &cfg, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
