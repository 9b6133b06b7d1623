// internal/pipe/models.go
package pipe

import (
	"strings"

	"github.com/mwiater/flowpipe/internal/providers"
)

// Model is one selectable entry in the chat front-end's model picker.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// classification maps a case-insensitive substring to the emoji shown before a workflow name.
type classification struct {
	contains string
	emoji    string
}

// classifications are evaluated in order; the first match wins.
var classifications = []classification{
	{contains: "agent", emoji: "🤖"},
	{contains: "chat", emoji: "💬"},
}

const (
	defaultEmoji = "🔄"
	unnamedFlow  = "Unnamed Flow"
)

// Classify returns the emoji for a workflow. The category is classified when set,
// otherwise the workflow type and then its name.
func Classify(wf providers.Workflow) string {
	subject := wf.Category
	for _, candidate := range []string{wf.Type, wf.Name} {
		if strings.TrimSpace(subject) != "" {
			break
		}
		subject = candidate
	}
	return classifyText(subject)
}

func classifyText(text string) string {
	lower := strings.ToLower(text)
	for _, c := range classifications {
		if strings.Contains(lower, c.contains) {
			return c.emoji
		}
	}
	return defaultEmoji
}

// DisplayName renders "<emoji> <name>" for a workflow.
func DisplayName(wf providers.Workflow) string {
	name := strings.TrimSpace(wf.Name)
	if name == "" {
		name = unnamedFlow
	}
	return Classify(wf) + " " + name
}

// toModels maps workflows to models in upstream order, keeping the first record per id.
func toModels(workflows []providers.Workflow) []Model {
	models := make([]Model, 0, len(workflows))
	seen := make(map[string]struct{}, len(workflows))
	for _, wf := range workflows {
		if _, dup := seen[wf.ID]; dup || wf.ID == "" {
			continue
		}
		seen[wf.ID] = struct{}{}
		models = append(models, Model{ID: wf.ID, Name: DisplayName(wf)})
	}
	return models
}
