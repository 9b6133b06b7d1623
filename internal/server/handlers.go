// internal/server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/pipe"
)

const ownedBy = "flowise"

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := s.pipe.ListModels(r.Context())
	resp := modelList{Object: "list", Data: make([]modelObject, 0, len(models))}
	for _, m := range models {
		resp.Data = append(resp.Data, modelObject{
			ID:      m.ID,
			Object:  "model",
			Created: s.started.Unix(),
			OwnedBy: ownedBy,
			Name:    m.Name,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.aggregator == nil {
		writeError(w, http.StatusNotFound, "invalid_request_error", "metrics_disabled", "Metrics are disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.aggregator.Snapshot())
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "", "Request body too large")
		return
	}
	if err := validateChatCompletion(body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "", err.Error())
		return
	}
	var req chatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "", fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	logging.LogRequest("CLIENT->PIPE", r.RemoteAddr, req.Model, r.URL.Path, body)

	turn := pipe.Request{
		Model:    req.Model,
		Messages: req.Messages,
		ChatID:   req.chatID(r.Header.Get(ChatIDHeader)),
		Stream:   req.Stream,
	}
	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	if !req.Stream {
		text := s.pipe.Complete(r.Context(), turn, nil)
		writeJSON(w, http.StatusOK, chatCompletion{
			ID:      id,
			Object:  "chat.completion",
			Created: created,
			Model:   req.Model,
			Choices: []completionChoice{{
				Message:      chatMessage{Role: "assistant", Content: text},
				FinishReason: "stop",
			}},
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "api_error", "", "Streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sse := &sseWriter{w: w, flusher: flusher, id: id, created: created, model: req.Model}
	sse.chunk(chunkDelta{Role: "assistant"}, nil)
	for token := range s.pipe.Run(r.Context(), turn, sse) {
		if err := sse.chunk(chunkDelta{Content: token}, nil); err != nil {
			logging.LogEvent("[SERVER] client went away: %v", err)
			return
		}
	}
	if r.Context().Err() != nil {
		return
	}
	stop := "stop"
	sse.chunk(chunkDelta{}, &stop)
	sse.done()
}

// sseWriter writes OpenAI chat completion chunks. It also implements pipe.Emitter,
// sending status events as SSE comment lines that OpenAI clients skip.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
	id      string
	created int64
	model   string
}

var _ pipe.Emitter = (*sseWriter)(nil)

func (s *sseWriter) chunk(delta chunkDelta, finish *string) error {
	data, err := json.Marshal(chatCompletionChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []chunkChoice{{Delta: delta, FinishReason: finish}},
	})
	if err != nil {
		return err
	}
	return s.write("data: " + string(data) + "\n\n")
}

func (s *sseWriter) done() {
	_ = s.write("data: [DONE]\n\n")
}

// Emit writes status as an SSE comment.
func (s *sseWriter) Emit(_ context.Context, status pipe.Status) error {
	data, err := json.Marshal(status.Event())
	if err != nil {
		return err
	}
	return s.write(": " + string(data) + "\n\n")
}

func (s *sseWriter) write(frame string) error {
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
