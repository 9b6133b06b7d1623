// internal/server/openai.go
package server

import (
	"strings"

	"github.com/mwiater/flowpipe/internal/pipe"
)

// chatCompletionRequest is the subset of the OpenAI chat completion body flowpipe uses.
type chatCompletionRequest struct {
	Model    string         `json:"model"`
	Messages []pipe.Message `json:"messages"`
	Stream   bool           `json:"stream"`
	ChatID   string         `json:"chat_id,omitempty"`
	Metadata struct {
		ChatID string `json:"chat_id,omitempty"`
	} `json:"metadata"`
}

// chatID picks the first non-blank conversation id from the header, the body or
// its metadata. The chosen id is returned unmodified.
func (r chatCompletionRequest) chatID(header string) string {
	for _, candidate := range []string{header, r.ChatID, r.Metadata.ChatID} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Name    string `json:"name"`
}

type modelList struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}
