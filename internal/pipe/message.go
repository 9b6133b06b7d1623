// internal/pipe/message.go
package pipe

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mwiater/flowpipe/internal/providers"
)

const imagePlaceholder = "[Image content]"

// Request is one conversation turn as submitted by the chat front-end.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	ChatID   string    `json:"chat_id,omitempty"`
	Stream   bool      `json:"stream"`
}

// Message is a single chat message. Content may be plain text or a list of parts.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// ContentPart is one element of a structured message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image attached to a message.
type ImageURL struct {
	URL string `json:"url"`
}

// MessageContent holds either a plain string or structured parts.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// Text builds plain-text message content.
func Text(s string) MessageContent {
	return MessageContent{Text: s}
}

// UnmarshalJSON accepts a string, an array of parts or null. Array items that are
// not objects are kept as text parts.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	*c = MessageContent{}
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '"':
		return json.Unmarshal(trimmed, &c.Text)
	case trimmed[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		c.Parts = make([]ContentPart, 0, len(raw))
		for _, item := range raw {
			item = bytes.TrimSpace(item)
			if len(item) > 0 && item[0] == '{' {
				var part ContentPart
				if err := json.Unmarshal(item, &part); err != nil {
					return err
				}
				c.Parts = append(c.Parts, part)
				continue
			}
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				s = string(item)
			}
			c.Parts = append(c.Parts, ContentPart{Type: "text", Text: s})
		}
		return nil
	default:
		c.Text = string(trimmed)
		return nil
	}
}

// MarshalJSON writes the parts when present, otherwise the plain text.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// String flattens the content into the question text sent to Flowise. Text parts
// are joined with spaces and images become a placeholder.
func (c MessageContent) String() string {
	if c.Parts == nil {
		return c.Text
	}
	pieces := make([]string, 0, len(c.Parts))
	for _, part := range c.Parts {
		switch part.Type {
		case "text":
			pieces = append(pieces, part.Text)
		case "image_url":
			pieces = append(pieces, imagePlaceholder)
		}
	}
	return strings.Join(pieces, " ")
}

// Question returns the text of the last message in the request.
func (r Request) Question() (string, error) {
	if len(r.Messages) == 0 {
		return "", &providers.InvalidInputError{Reason: "No messages found in request"}
	}
	question := r.Messages[len(r.Messages)-1].Content.String()
	if strings.TrimSpace(question) == "" {
		return "", &providers.InvalidInputError{Reason: "Empty message content"}
	}
	return question, nil
}

// ResolveWorkflowID strips the manifold prefix from a model id, so "flowise.abc"
// resolves to "abc". Ids without a dot are returned unchanged.
func ResolveWorkflowID(model string) string {
	model = strings.TrimSpace(model)
	if _, after, found := strings.Cut(model, "."); found {
		return after
	}
	return model
}
