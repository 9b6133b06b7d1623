// internal/metrics/provider.go
package metrics

import (
	"context"
	"errors"
	"iter"
	"time"
	"unicode/utf8"

	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/providers"
)

// Provider is a decorator that wraps a WorkflowProvider to record metrics.
type Provider struct {
	wrapped    providers.WorkflowProvider
	aggregator *Aggregator
	now        func() time.Time
}

var _ providers.WorkflowProvider = (*Provider)(nil)

// NewProvider creates a new metrics-enabled provider that wraps an existing WorkflowProvider.
func NewProvider(wrapped providers.WorkflowProvider, aggregator *Aggregator) *Provider {
	logging.LogEvent("[METRICS] Wrapping provider with metrics provider")
	return &Provider{wrapped: wrapped, aggregator: aggregator, now: time.Now}
}

// Aggregator returns the aggregator samples are recorded into.
func (p *Provider) Aggregator() *Aggregator {
	return p.aggregator
}

// ListWorkflows passes the call through to the wrapped provider.
func (p *Provider) ListWorkflows(ctx context.Context) ([]providers.Workflow, error) {
	return p.wrapped.ListWorkflows(ctx)
}

// Predict times a blocking prediction; the whole answer counts as one chunk.
func (p *Provider) Predict(ctx context.Context, workflowID string, req providers.PredictionRequest) (providers.Prediction, error) {
	start := p.now()
	answer, err := p.wrapped.Predict(ctx, workflowID, req)
	elapsed := p.now().Sub(start)

	sample := Sample{Workflow: workflowID, Duration: elapsed, Failed: failed(err)}
	if err == nil {
		sample.FirstChunk = elapsed
		sample.Chunks = 1
		sample.Characters = utf8.RuneCountInString(answer.Text)
	}
	p.record(sample, err)
	return answer, err
}

// StreamPredict intercepts the token stream to record time to first token and throughput.
// A sample is recorded when the stream ends, including when the consumer stops early.
func (p *Provider) StreamPredict(ctx context.Context, workflowID string, req providers.PredictionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := p.now()
		sample := Sample{Workflow: workflowID, Streaming: true}
		var streamErr error
		defer func() {
			sample.Duration = p.now().Sub(start)
			sample.Failed = failed(streamErr)
			p.record(sample, streamErr)
		}()

		for token, err := range p.wrapped.StreamPredict(ctx, workflowID, req) {
			if err != nil {
				streamErr = err
				yield("", err)
				return
			}
			if sample.Chunks == 0 {
				sample.FirstChunk = p.now().Sub(start)
			}
			sample.Chunks++
			sample.Characters += utf8.RuneCountInString(token)
			if !yield(token, nil) {
				return
			}
		}
	}
}

func (p *Provider) record(s Sample, err error) {
	if p.aggregator == nil {
		return
	}
	if err != nil {
		logging.LogEvent("[METRICS] workflow %s failed after %s: %v", s.Workflow, s.Duration, err)
	}
	p.aggregator.Record(s)
}

// failed reports whether err counts against the workflow. Caller cancellation does not.
func failed(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Close passes the call through to the wrapped provider.
func (p *Provider) Close() error {
	return p.wrapped.Close()
}
