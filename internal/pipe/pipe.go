// internal/pipe/pipe.go
// Package pipe adapts Flowise workflows to the chat front-end's model and chat contract.
// It discovers workflows as models and runs one conversation turn per call, yielding
// the answer as a lazy sequence of text chunks.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/providers"
)

// MissingConfigMessage is returned for every turn when no Flowise URL is configured.
const MissingConfigMessage = "❌ Missing Flowise configuration. Please check your API URL and key."

// Pipe runs conversation turns against a workflow provider.
type Pipe struct {
	cfg      appconfig.Config
	provider providers.WorkflowProvider
	now      func() time.Time

	mu      sync.RWMutex
	catalog map[string]providers.Workflow
}

// New returns a Pipe for the given configuration. The configuration is copied and
// treated as immutable.
func New(cfg *appconfig.Config, provider providers.WorkflowProvider) *Pipe {
	p := &Pipe{provider: provider, now: time.Now}
	if cfg != nil {
		p.cfg = *cfg
	}
	return p
}

// Discover lists the workflows on the Flowise host as models and refreshes the
// catalog used to validate workflow ids.
func (p *Pipe) Discover(ctx context.Context) ([]Model, error) {
	if p.provider == nil || p.cfg.BaseURL() == "" {
		return nil, &providers.InvalidInputError{Reason: "flowise URL is not configured"}
	}
	workflows, err := p.provider.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}

	catalog := make(map[string]providers.Workflow, len(workflows))
	for _, wf := range workflows {
		if _, dup := catalog[wf.ID]; !dup {
			catalog[wf.ID] = wf
		}
	}
	p.mu.Lock()
	p.catalog = catalog
	p.mu.Unlock()

	return toModels(workflows), nil
}

// ListModels is Discover without the error: failures are logged and an empty
// list is returned.
func (p *Pipe) ListModels(ctx context.Context) []Model {
	models, err := p.Discover(ctx)
	if err != nil {
		logging.LogEvent("[PIPE] model discovery failed: %v", err)
		return []Model{}
	}
	return models
}

// Workflow returns the catalog entry for id from the last successful discovery.
func (p *Pipe) Workflow(id string) (providers.Workflow, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	wf, ok := p.catalog[id]
	return wf, ok
}

// knownWorkflow reports whether id may be sent to Flowise. Before the first
// successful discovery every id is accepted.
func (p *Pipe) knownWorkflow(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.catalog) == 0 {
		return true
	}
	_, ok := p.catalog[id]
	return ok
}

// buildPayload assembles the prediction body for one turn.
func (p *Pipe) buildPayload(question, chatID, workflowID string, streaming bool) (providers.PredictionRequest, error) {
	if strings.TrimSpace(workflowID) == "" {
		return providers.PredictionRequest{}, &providers.InvalidInputError{Reason: "No workflow selected"}
	}
	if !p.knownWorkflow(workflowID) {
		return providers.PredictionRequest{}, &providers.InvalidInputError{Reason: fmt.Sprintf("Unknown workflow: %s", workflowID)}
	}
	return providers.PredictionRequest{
		Question:       question,
		OverrideConfig: providers.OverrideConfig{SessionID: SessionID(chatID)},
		Streaming:      streaming,
	}, nil
}

// Run executes one turn and yields the answer. Streaming turns yield tokens as they
// arrive; non-streaming turns yield the whole answer once. Every failure is turned
// into a single displayable message. Cancelling ctx or stopping the iteration ends
// the sequence and releases the upstream connection.
func (p *Pipe) Run(ctx context.Context, req Request, emitter Emitter) iter.Seq[string] {
	return func(yield func(string) bool) {
		status := newStatusReporter(emitter, p.cfg.EnableStatusIndicator, p.cfg.EmitIntervalDuration(), p.now)
		status.info(ctx, statusInitializing)

		if p.provider == nil || p.cfg.BaseURL() == "" {
			status.done(ctx, LevelError, MissingConfigMessage)
			yield(MissingConfigMessage)
			return
		}

		workflowID := ResolveWorkflowID(req.Model)
		question, err := req.Question()
		if err != nil {
			p.fail(ctx, status, err, 0, yield)
			return
		}
		payload, err := p.buildPayload(question, req.ChatID, workflowID, req.Stream)
		if err != nil {
			p.fail(ctx, status, err, 0, yield)
			return
		}
		logging.LogDebug("turn workflow=%s stream=%t session=%s", workflowID, req.Stream, payload.OverrideConfig.SessionID)

		status.info(ctx, statusSending)
		if !req.Stream {
			answer, err := p.provider.Predict(ctx, workflowID, payload)
			if err != nil {
				p.fail(ctx, status, err, 0, yield)
				return
			}
			status.info(ctx, statusProcessing)
			if answer.Unstructured {
				status.done(ctx, LevelWarning, statusUnexpectedFormat)
			} else {
				status.done(ctx, LevelInfo, statusReady)
			}
			yield(answer.Text)
			return
		}

		tokens := 0
		for token, err := range p.provider.StreamPredict(ctx, workflowID, payload) {
			if err != nil {
				p.fail(ctx, status, err, tokens, yield)
				return
			}
			if tokens == 0 {
				status.info(ctx, statusReceiving)
			} else {
				status.info(ctx, fmt.Sprintf("📡 Receiving response... (%d chunks)", tokens))
			}
			tokens++
			if !yield(token) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		if tokens == 0 {
			p.fail(ctx, status, &providers.RemoteError{StatusCode: 200, Err: providers.ErrEmptyResponse}, 0, yield)
			return
		}
		status.done(ctx, LevelInfo, statusReady)
	}
}

// Complete runs a turn and concatenates every chunk it yields.
func (p *Pipe) Complete(ctx context.Context, req Request, emitter Emitter) string {
	var b strings.Builder
	for chunk := range p.Run(ctx, req, emitter) {
		b.WriteString(chunk)
	}
	return b.String()
}

// fail reports err as a done error status and yields its message. Cancellation by
// the caller ends the turn silently.
func (p *Pipe) fail(ctx context.Context, status *statusReporter, err error, tokens int, yield func(string) bool) {
	if ctx.Err() != nil {
		logging.LogEvent("[PIPE] turn cancelled: %v", context.Cause(ctx))
		return
	}
	msg := ErrorMessage(err)
	logging.LogEvent("[PIPE] turn failed: %v", err)
	status.done(ctx, LevelError, msg)
	if tokens > 0 {
		msg = "\n\n" + msg
	}
	yield(msg)
}

// ErrorMessage converts an error into the text shown to the user in place of an answer.
func ErrorMessage(err error) string {
	var (
		invalid     *providers.InvalidInputError
		timeout     *providers.TimeoutError
		interrupted *providers.StreamInterruptedError
		remote      *providers.RemoteError
	)
	switch {
	case errors.As(err, &invalid):
		return "❌ " + invalid.Reason
	case errors.As(err, &timeout):
		return fmt.Sprintf("⏰ Request timeout after %g seconds - consider increasing the timeout setting", timeout.Timeout.Seconds())
	case errors.As(err, &interrupted):
		return fmt.Sprintf("❌ Streaming error: %v", interrupted.Err)
	case errors.Is(err, providers.ErrWorkflowEvent) && errors.As(err, &remote):
		return "❌ Workflow error: " + remote.Body
	case errors.As(err, &remote) && remote.StatusCode == 0:
		return fmt.Sprintf("🔌 Connection failed - Is Flowise running and accessible? (%v)", remote.Err)
	case errors.As(err, &remote):
		detail := remote.Body
		if detail == "" && remote.Err != nil {
			detail = remote.Err.Error()
		}
		return fmt.Sprintf("🚫 HTTP Error %d: %s", remote.StatusCode, detail)
	default:
		return fmt.Sprintf("❌ Unexpected error: %v", err)
	}
}
