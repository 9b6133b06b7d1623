// internal/server/validate.go
package server

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// chatCompletionSchema describes the chat completion bodies accepted by the server.
var chatCompletionSchema = map[string]any{
	"type":     "object",
	"required": []any{"model", "messages"},
	"properties": map[string]any{
		"model":   map[string]any{"type": "string", "minLength": 1},
		"stream":  map[string]any{"type": "boolean"},
		"chat_id": map[string]any{"type": "string"},
		"metadata": map[string]any{
			"type": []any{"object", "null"},
			"properties": map[string]any{
				"chat_id": map[string]any{"type": []any{"string", "null"}},
			},
		},
		"messages": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"role"},
				"properties": map[string]any{
					"role": map[string]any{"type": "string"},
					"content": map[string]any{
						"type": []any{"string", "array", "null"},
					},
				},
			},
		},
	},
}

var chatCompletionLoader = gojsonschema.NewGoLoader(chatCompletionSchema)

// validateChatCompletion checks a raw request body against chatCompletionSchema.
func validateChatCompletion(body []byte) error {
	result, err := gojsonschema.Validate(chatCompletionLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("request failed validation: %s", strings.Join(details, "; "))
}
