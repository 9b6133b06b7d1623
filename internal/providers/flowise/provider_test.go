// internal/providers/flowise/provider_test.go
package flowise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/providers"
)

func newTestProvider(t *testing.T, url string, timeoutSeconds int) *Provider {
	t.Helper()
	cfg := &appconfig.Config{FlowiseURL: url, FlowiseAPIKey: "test-key", TimeoutSeconds: timeoutSeconds}
	p := New(cfg)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func samplePayload() providers.PredictionRequest {
	return providers.PredictionRequest{
		Question:       "hello",
		OverrideConfig: providers.OverrideConfig{SessionID: "session-1"},
	}
}

// TestListWorkflows verifies the discovery request and the decoding of chatflow records.
func TestListWorkflows(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/v1/chatflows" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"a1","name":"Support Agent","category":"agents;support","type":"AGENTFLOW","deployed":true},
			{"id":"c1","name":"Docs QA","category":null,"type":"CHATFLOW"},
			{"id":"","name":"broken"}
		]`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL+"/", 5)
	workflows, err := p.ListWorkflows(context.Background())
	if err != nil {
		t.Fatalf("ListWorkflows error: %v", err)
	}
	want := []providers.Workflow{
		{ID: "a1", Name: "Support Agent", Category: "agents;support", Type: "AGENTFLOW", Deployed: true},
		{ID: "c1", Name: "Docs QA", Type: "CHATFLOW"},
	}
	if !reflect.DeepEqual(workflows, want) {
		t.Fatalf("workflows = %+v, want %+v", workflows, want)
	}
}

func TestListWorkflowsHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 5)
	_, err := p.ListWorkflows(context.Background())
	var remote *providers.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 RemoteError, got %v", err)
	}
}

func TestListWorkflowsUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	p := newTestProvider(t, url, 2)
	_, err := p.ListWorkflows(context.Background())
	var remote *providers.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != 0 {
		t.Fatalf("expected connection RemoteError, got %v", err)
	}
}

// TestPredict verifies the request body, headers and the normalization of the reply.
func TestPredict(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/prediction/wf-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if accept := r.Header.Get("Accept"); !strings.HasPrefix(accept, "application/json") {
			t.Errorf("unexpected accept header %q", accept)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"final answer","chatId":"x"}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 5)
	answer, err := p.Predict(context.Background(), "wf-1", samplePayload())
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	if answer.Text != "final answer" || answer.Unstructured {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if captured["question"] != "hello" || captured["streaming"] != false {
		t.Fatalf("unexpected payload %v", captured)
	}
	override, _ := captured["overrideConfig"].(map[string]any)
	if override["sessionId"] != "session-1" {
		t.Fatalf("unexpected overrideConfig %v", captured["overrideConfig"])
	}
}

func TestPredictRemoteError(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 2000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(long))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 5)
	_, err := p.Predict(context.Background(), "wf-1", samplePayload())
	var remote *providers.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", remote.StatusCode)
	}
	if len([]rune(remote.Body)) != maxDiagnosticRunes+1 {
		t.Fatalf("expected truncated body, got %d runes", len([]rune(remote.Body)))
	}
	var timeout *providers.TimeoutError
	if errors.As(err, &timeout) {
		t.Fatal("remote error must not look like a timeout")
	}
}

func TestPredictEmptyBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 5)
	_, err := p.Predict(context.Background(), "wf-1", samplePayload())
	var remote *providers.RemoteError
	if !errors.As(err, &remote) || !errors.Is(err, providers.ErrEmptyResponse) {
		t.Fatalf("expected empty-response RemoteError, got %v", err)
	}
	if remote.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", remote.StatusCode)
	}
}

// TestPredictAnswerShapes covers replies that are not an error even though they
// carry no usable answer field.
func TestPredictAnswerShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		body         string
		want         string
		unstructured bool
	}{
		{name: "empty text field", body: `{"text":""}`, want: ""},
		{name: "unknown object", body: `{"answer":"x"}`, want: `{"answer":"x"}`, unstructured: true},
		{name: "top-level array", body: `[1,2]`, want: `[1,2]`, unstructured: true},
		{name: "plain text", body: "just text", want: "just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := newTestProvider(t, server.URL, 5)
			answer, err := p.Predict(context.Background(), "wf-1", samplePayload())
			if err != nil {
				t.Fatalf("Predict error: %v", err)
			}
			if answer.Text != tt.want || answer.Unstructured != tt.unstructured {
				t.Fatalf("answer = %+v, want text %q unstructured=%v", answer, tt.want, tt.unstructured)
			}
		})
	}
}

// TestPredictTimeout checks that a slow host yields a TimeoutError rather than a RemoteError.
func TestPredictTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 1)
	start := time.Now()
	_, err := p.Predict(context.Background(), "wf-1", samplePayload())
	var timeout *providers.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	var remote *providers.RemoteError
	if errors.As(err, &remote) {
		t.Fatal("timeout must not be reported as RemoteError")
	}
	if elapsed := time.Since(start); elapsed > 2500*time.Millisecond {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestPredictCancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := p.Predict(ctx, "wf-1", samplePayload())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline to propagate, got %v", err)
	}
}

func TestPredictRequiresWorkflow(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, "http://127.0.0.1:1", 1)
	_, err := p.Predict(context.Background(), " ", samplePayload())
	var invalid *providers.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}

// TestStreamPredict verifies streaming tokens, the streaming flag and the SSE accept header.
func TestStreamPredict(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accept := r.Header.Get("Accept"); !strings.HasPrefix(accept, "text/event-stream") {
			t.Errorf("unexpected accept header %q", accept)
		}
		var payload providers.PredictionRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || !payload.Streaming {
			t.Errorf("expected streaming payload, got %+v (%v)", payload, err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range []string{
			"message:\ndata: {\"event\":\"start\",\"data\":\"\"}\n\n",
			"message:\ndata: {\"event\":\"token\",\"data\":\"Hi\"}\n\n",
			"data: {not json\n\n",
			"message:\ndata: {\"event\":\"token\",\"data\":\" there\"}\n\n",
			"message:\ndata: {\"event\":\"end\",\"data\":\"[DONE]\"}\n\n",
		} {
			_, _ = fmt.Fprint(w, line)
			flusher.Flush()
		}
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 5)
	got, err := collect(p.StreamPredict(context.Background(), "wf-1", samplePayload()))
	if err != nil {
		t.Fatalf("StreamPredict error: %v", err)
	}
	if want := []string{"Hi", " there"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("tokens = %q, want %q", got, want)
	}
}

// TestStreamPredictOversizedLine verifies that one line past the 4 MiB limit is
// dropped without ending the stream.
func TestStreamPredictOversizedLine(t *testing.T) {
	t.Parallel()

	huge := strings.Repeat("z", maxLineLength+1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"event\":\"token\",\"data\":\"before\"}\n")
		_, _ = fmt.Fprintf(w, "data: {\"event\":\"token\",\"data\":\"%s\"}\n", huge)
		_, _ = fmt.Fprint(w, "data: {\"event\":\"token\",\"data\":\" after\"}\n")
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 5)
	got, err := collect(p.StreamPredict(context.Background(), "wf-1", samplePayload()))
	if err != nil {
		t.Fatalf("StreamPredict error: %v", err)
	}
	if want := []string{"before", " after"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("tokens = %q, want %q", got, want)
	}
}

func TestStreamPredictIsLazy(t *testing.T) {
	t.Parallel()

	hits := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 5)
	_ = p.StreamPredict(context.Background(), "wf-1", samplePayload())
	select {
	case <-hits:
		t.Fatal("request issued before the sequence was pulled")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamPredictHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chatflow not found", http.StatusNotFound)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 5)
	got, err := collect(p.StreamPredict(context.Background(), "missing", samplePayload()))
	if len(got) != 0 {
		t.Fatalf("expected no tokens, got %q", got)
	}
	var remote *providers.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 RemoteError, got %v", err)
	}
	if !strings.Contains(remote.Body, "chatflow not found") {
		t.Fatalf("expected diagnostic body, got %q", remote.Body)
	}
}

// TestStreamPredictInterrupted drops the connection after one token.
func TestStreamPredictInterrupted(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"event\":\"token\",\"data\":\"kept\"}\n\n")
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 5)
	got, err := collect(p.StreamPredict(context.Background(), "wf-1", samplePayload()))
	if !reflect.DeepEqual(got, []string{"kept"}) {
		t.Fatalf("tokens = %q", got)
	}
	var interrupted *providers.StreamInterruptedError
	if !errors.As(err, &interrupted) {
		t.Fatalf("expected StreamInterruptedError, got %v", err)
	}
}

// TestStreamPredictIdleTimeout stalls after one token and expects a TimeoutError.
func TestStreamPredictIdleTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"event\":\"token\",\"data\":\"slow\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, 1)
	got, err := collect(p.StreamPredict(context.Background(), "wf-1", samplePayload()))
	if !reflect.DeepEqual(got, []string{"slow"}) {
		t.Fatalf("tokens = %q", got)
	}
	var timeout *providers.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}
