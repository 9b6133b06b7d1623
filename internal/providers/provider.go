// internal/providers/provider.go

// Package providers defines the interface for talking to a workflow host such as Flowise.
// It provides a common abstraction for discovering workflows, running a prediction and
// consuming a streamed prediction, regardless of the decorators stacked on top of the
// concrete implementation (e.g., metrics).
package providers

import (
	"context"
	"iter"
)

// Workflow describes one server-side configured pipeline that can be selected as a model.
type Workflow struct {
	ID       string
	Name     string
	Category string
	Type     string
	Deployed bool
}

// OverrideConfig carries per-request overrides forwarded to the workflow host.
type OverrideConfig struct {
	SessionID string `json:"sessionId"`
}

// PredictionRequest is the body of a prediction call.
type PredictionRequest struct {
	Question       string         `json:"question"`
	OverrideConfig OverrideConfig `json:"overrideConfig"`
	Streaming      bool           `json:"streaming"`
}

// Prediction is the normalized answer of a blocking prediction.
type Prediction struct {
	Text string
	// Unstructured is set when no known answer field was found and the whole
	// response was rendered as text.
	Unstructured bool
}

// WorkflowProvider is the interface that all workflow hosts must implement.
type WorkflowProvider interface {
	// ListWorkflows returns the workflows currently available on the host.
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	// Predict runs a prediction and returns the normalized answer.
	Predict(ctx context.Context, workflowID string, req PredictionRequest) (Prediction, error)
	// StreamPredict runs a streaming prediction. The request is issued on the first pull;
	// tokens are yielded in receipt order and an error, if any, is yielded last.
	StreamPredict(ctx context.Context, workflowID string, req PredictionRequest) iter.Seq2[string, error]
	// Close cleans up any resources used by the provider.
	Close() error
}
