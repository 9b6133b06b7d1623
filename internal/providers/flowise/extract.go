package flowise

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mwiater/flowpipe/internal/providers"
)

// Extractor pulls the answer text out of a decoded response object.
type Extractor func(obj map[string]any) (string, bool)

// Field returns an Extractor that matches when name is present and non-null.
func Field(name string) Extractor {
	return func(obj map[string]any) (string, bool) {
		v, ok := obj[name]
		if !ok || v == nil {
			return "", false
		}
		return textOf(v), true
	}
}

// DefaultExtractors lists the response fields Flowise uses for the answer, highest priority first.
var DefaultExtractors = []Extractor{
	Field("text"),
	Field("message"),
	Field("content"),
	Field("response"),
}

// ExtractText returns the answer carried by a decoded JSON value using DefaultExtractors.
// Objects without a known field, and values that are not objects, are rendered as JSON text.
func ExtractText(v any) string {
	text, _ := extractWith(DefaultExtractors, v)
	return text
}

// extractWith reports matched=false when v had to be rendered whole because it
// is neither a string nor an object carrying one of the rule fields.
func extractWith(rules []Extractor, v any) (text string, matched bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]any:
		for _, rule := range rules {
			if text, ok := rule(t); ok {
				return text, true
			}
		}
	}
	return textOf(v), false
}

// NormalizeBody turns a non-streaming response body into an answer. A body that
// is not JSON is returned unchanged. Only a blank body is reported as
// ErrEmptyResponse; a known field holding an empty string is a valid empty answer.
func NormalizeBody(body []byte) (providers.Prediction, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return providers.Prediction{}, providers.ErrEmptyResponse
	}
	v, err := decodeJSON(trimmed)
	if err != nil {
		return providers.Prediction{Text: string(body)}, nil
	}
	text, matched := extractWith(DefaultExtractors, v)
	return providers.Prediction{Text: text, Unstructured: !matched}, nil
}

func decodeJSON(data []byte) (any, error) {
	if !json.Valid(data) {
		return nil, errors.New("invalid JSON value")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// textOf coerces a decoded JSON value to text: strings verbatim, null as empty,
// everything else as compact JSON.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
