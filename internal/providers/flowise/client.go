// internal/providers/flowise/client.go
// Package flowise provides a WorkflowProvider backed by the Flowise HTTP API.
package flowise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/providers"
	"github.com/mwiater/flowpipe/internal/util"
)

const (
	chatflowsPath  = "/api/v1/chatflows"
	predictionPath = "/api/v1/prediction/"

	acceptJSON   = "application/json; charset=utf-8"
	acceptStream = "text/event-stream; charset=utf-8"

	// maxDiagnosticRunes bounds the response body carried by a RemoteError.
	maxDiagnosticRunes = 512
)

// errRequestTimeout is the cancellation cause used when the configured timeout fires.
var errRequestTimeout = errors.New("flowise request timeout")

// Provider implements the providers.WorkflowProvider interface using Flowise HTTP APIs.
type Provider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration
}

var _ providers.WorkflowProvider = (*Provider)(nil)

// New constructs a Provider configured with the application's base URL, key and timeout.
// Timeouts are enforced per request through contexts rather than http.Client.Timeout
// so that a long stream is not cut while tokens keep arriving.
func New(cfg *appconfig.Config) *Provider {
	return &Provider{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				ForceAttemptHTTP2: false,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		baseURL: cfg.BaseURL(),
		apiKey:  strings.TrimSpace(cfg.FlowiseAPIKey),
		timeout: cfg.RequestTimeout(),
	}
}

// Close releases idle connections held by the provider.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// newRequest builds a request against the Flowise base URL with the common headers.
func (p *Provider) newRequest(ctx context.Context, method, path string, body any, accept string) (*http.Request, error) {
	if p.baseURL == "" {
		return nil, &providers.InvalidInputError{Reason: "flowise URL is not configured"}
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", accept)
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return req, nil
}

// send performs req and converts non-2xx responses into RemoteErrors. The
// caller owns the returned body.
func (p *Provider) send(req *http.Request, workflowID string) (*http.Response, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		logging.LogRequest("FLOWISE->PIPE", p.baseURL, workflowID, req.URL.Path, raw)
		return nil, &providers.RemoteError{
			StatusCode: resp.StatusCode,
			Body:       util.TruncateRunes(strings.TrimSpace(string(raw)), maxDiagnosticRunes),
		}
	}
	return resp, nil
}

// classify maps a transport failure onto the error taxonomy. parent is the
// caller's context and reqCtx the derived context carrying the timeout cause.
func (p *Provider) classify(parent, reqCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var remote *providers.RemoteError
	var invalid *providers.InvalidInputError
	if errors.As(err, &remote) || errors.As(err, &invalid) {
		return err
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(context.Cause(reqCtx), errRequestTimeout) || isTimeout(err) {
		return &providers.TimeoutError{Timeout: p.timeout, Err: err}
	}
	return &providers.RemoteError{Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

// withTimeout derives a context that is cancelled with errRequestTimeout when
// the returned timer fires. Resetting the timer extends the deadline.
func (p *Provider) withTimeout(ctx context.Context) (context.Context, *time.Timer, context.CancelFunc) {
	reqCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(p.timeout, func() { cancel(errRequestTimeout) })
	return reqCtx, timer, func() {
		timer.Stop()
		cancel(context.Canceled)
	}
}
