package flowise

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/providers"
)

func predictionEndpoint(workflowID string) string {
	return predictionPath + url.PathEscape(workflowID)
}

func requireWorkflow(workflowID string) error {
	if strings.TrimSpace(workflowID) == "" {
		return &providers.InvalidInputError{Reason: "no workflow selected"}
	}
	return nil
}

// Predict issues a non-streaming prediction and returns the normalized answer.
func (p *Provider) Predict(ctx context.Context, workflowID string, req providers.PredictionRequest) (providers.Prediction, error) {
	if err := requireWorkflow(workflowID); err != nil {
		return providers.Prediction{}, err
	}
	req.Streaming = false
	endpoint := predictionEndpoint(workflowID)

	reqCtx, _, cancel := p.withTimeout(ctx)
	defer cancel()

	logging.LogRequest("PIPE->FLOWISE", p.baseURL, workflowID, endpoint, req)
	httpReq, err := p.newRequest(reqCtx, http.MethodPost, endpoint, req, acceptJSON)
	if err != nil {
		return providers.Prediction{}, err
	}

	resp, err := p.send(httpReq, workflowID)
	if err != nil {
		return providers.Prediction{}, p.classify(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.Prediction{}, p.classify(ctx, reqCtx, err)
	}
	logging.LogRequest("FLOWISE->PIPE", p.baseURL, workflowID, endpoint, body)

	answer, err := NormalizeBody(body)
	if err != nil {
		return providers.Prediction{}, &providers.RemoteError{StatusCode: resp.StatusCode, Err: err}
	}
	if answer.Unstructured {
		logging.LogDebug("unexpected response format from workflow %s", workflowID)
	}
	return answer, nil
}

// StreamPredict issues a streaming prediction when the sequence is first pulled.
// The configured timeout bounds the wait for the response headers and for each
// subsequent line. Stopping the iteration closes the connection.
func (p *Provider) StreamPredict(ctx context.Context, workflowID string, req providers.PredictionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := requireWorkflow(workflowID); err != nil {
			yield("", err)
			return
		}
		req.Streaming = true
		endpoint := predictionEndpoint(workflowID)

		reqCtx, timer, cancel := p.withTimeout(ctx)
		defer cancel()

		logging.LogRequest("PIPE->FLOWISE", p.baseURL, workflowID, endpoint, req)
		httpReq, err := p.newRequest(reqCtx, http.MethodPost, endpoint, req, acceptStream)
		if err != nil {
			yield("", err)
			return
		}

		resp, err := p.send(httpReq, workflowID)
		if err != nil {
			yield("", p.classify(ctx, reqCtx, err))
			return
		}
		defer resp.Body.Close()

		lines := func(yield func(string, error) bool) {
			for line, err := range Lines(resp.Body) {
				timer.Reset(p.timeout)
				if err == nil && line != "" {
					logging.LogDebug("flowise stream line: %s", line)
				}
				if !yield(line, err) {
					return
				}
			}
		}
		onMalformed := func(err *providers.MalformedEventError) {
			logging.LogDebug("skipping %v", err)
		}

		for token, err := range Tokens(Events(lines, onMalformed)) {
			if err != nil {
				yield("", p.classifyStream(ctx, reqCtx, err))
				return
			}
			if !yield(token, nil) {
				return
			}
		}
	}
}

// classifyStream keeps StreamInterruptedError for genuine connection drops but
// reports timeouts and caller cancellation as such.
func (p *Provider) classifyStream(parent, reqCtx context.Context, err error) error {
	var interrupted *providers.StreamInterruptedError
	if !errors.As(err, &interrupted) {
		return err
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(context.Cause(reqCtx), errRequestTimeout) {
		return &providers.TimeoutError{Timeout: p.timeout, Err: interrupted.Err}
	}
	return err
}
