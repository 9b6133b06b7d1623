package providers

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyResponse marks a successful HTTP status whose body carried no content.
var ErrEmptyResponse = errors.New("empty response body")

// ErrWorkflowEvent marks an error event reported by the workflow inside a stream.
var ErrWorkflowEvent = errors.New("workflow reported an error")

// InvalidInputError reports a request that cannot be sent, such as an unknown workflow.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// RemoteError reports a failed exchange with the workflow host. StatusCode is zero
// when no HTTP response was received.
type RemoteError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("remote request failed: %v", e.Err)
	case e.Err != nil && e.Body == "":
		return fmt.Sprintf("remote returned status %d: %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Body)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

// TimeoutError reports a request that exceeded the configured timeout.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// StreamInterruptedError reports a connection that dropped after streaming began.
// Tokens counts what was delivered before the failure; those tokens remain valid.
type StreamInterruptedError struct {
	Tokens int
	Err    error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream interrupted after %d tokens: %v", e.Tokens, e.Err)
}

func (e *StreamInterruptedError) Unwrap() error { return e.Err }

// MalformedEventError describes a single stream line whose payload could not be decoded.
// It is recovered locally and never ends a stream.
type MalformedEventError struct {
	Line string
	Err  error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed stream event %q: %v", e.Line, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }
